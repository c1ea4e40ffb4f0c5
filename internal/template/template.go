// Package template resolves dotted/indexed paths into node outputs (used by
// internal/executor's BuildInputs for input_mappings and by the Loop
// executor's iterator_path) and {{ }} placeholder strings (used by
// prompt_template), per
// spec.md §4.2/§4.3. Path resolution is grounded on the teacher's
// internal/application/template/resolver.go dotted-path walk, generalized to
// jq-style paths via itchyny/gojq so array indices and filters beyond plain
// dotted access are supported.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// ResolvePath evaluates a dotted/jq-style path against data and returns the
// first match. Paths may omit the leading '.', e.g. "output.x" or
// "items[0].name". A path that yields no value or a null value (a missing
// key) is an error.
func ResolvePath(data interface{}, path string) (interface{}, error) {
	expr := strings.TrimSpace(path)
	if expr == "" || expr == "." {
		return data, nil
	}
	if !strings.HasPrefix(expr, ".") {
		expr = "." + expr
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("template: parse path %q: %w", path, err)
	}
	iter := query.Run(data)
	v, ok := iter.Next()
	if !ok || v == nil {
		return nil, fmt.Errorf("template: path %q resolved to nothing", path)
	}
	if errVal, ok := v.(error); ok {
		return nil, fmt.Errorf("template: path %q: %w", path, errVal)
	}
	return v, nil
}

// ResolveString replaces every {{ path }} placeholder in s by resolving path
// against data. strict controls behavior on an unresolvable placeholder:
// strict=true returns an error, strict=false leaves the placeholder text in
// place (mirroring the teacher's Engine.Resolve strict-vs-placeholder modes).
func ResolveString(s string, data interface{}, strict bool) (string, error) {
	var firstErr error
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		path := placeholderPattern.FindStringSubmatch(match)[1]
		val, err := ResolvePath(data, path)
		if err != nil {
			if strict {
				firstErr = err
			}
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
