package executor

import (
	"fmt"

	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/template"
)

// BuildInputs implements spec.md §4.3 step 1: "Build inputs by
// ContextBuilder: resolve input_mappings (dotted paths into upstream
// outputs), merged with session metadata — explicit mappings win on key
// conflict."
func BuildInputs(cfg *node.Config, upstreamOutputs map[string]interface{}, sessionMeta map[string]interface{}) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(sessionMeta)+len(cfg.InputMappings))
	for k, v := range sessionMeta {
		inputs[k] = v
	}
	for localKey, mapping := range cfg.InputMappings {
		sourceOutput, ok := upstreamOutputs[mapping.SourceNodeID]
		if !ok {
			return nil, fmt.Errorf("contextbuilder: node %s: no output recorded for dependency %s",
				cfg.ID, mapping.SourceNodeID)
		}
		val, err := template.ResolvePath(sourceOutput, mapping.SourceOutputPath)
		if err != nil {
			return nil, fmt.Errorf("contextbuilder: node %s: input %s: %w", cfg.ID, localKey, err)
		}
		inputs[localKey] = val // explicit mapping wins on key conflict
	}
	return inputs, nil
}
