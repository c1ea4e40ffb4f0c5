package executor

import (
	"fmt"

	"github.com/smilemakc/flowcore/internal/node"
)

// ValidateSchema performs the "type-only check, not identity" spec.md §4.3
// calls for: every key declared in schema must be present in data and its
// runtime type must unify with the declared type name under the permissive
// rule of spec.md §4.1 ("any ⇝ T, dict ⇝ dict, primitives by name").
func ValidateSchema(data map[string]interface{}, schema node.Schema) error {
	for key, typeName := range schema {
		val, ok := data[key]
		if !ok {
			return fmt.Errorf("schema: missing required key %q", key)
		}
		if !typeMatches(val, typeName) {
			return fmt.Errorf("schema: key %q: value %v does not match declared type %q", key, val, typeName)
		}
	}
	return nil
}

func typeMatches(val interface{}, typeName string) bool {
	switch typeName {
	case "", "any":
		return true
	case "dict", "object", "map":
		_, ok := val.(map[string]interface{})
		return ok
	case "list", "array":
		_, ok := val.([]interface{})
		return ok
	case "string":
		_, ok := val.(string)
		return ok
	case "int", "integer":
		switch val.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case "float", "number":
		switch val.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case "bool", "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return true // unknown declared type names are permissive, per "any ⇝ T"
	}
}
