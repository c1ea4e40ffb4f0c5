package blueprint

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// Template is the YAML authoring shape a blueprint materializes from,
// grounded on the teacher's internal/application/importer/yaml_importer.go
// YAMLWorkflow/YAMLNode pair - a parallel, human-authored struct set kept
// separate from node.Config rather than reusing its json tags directly,
// matching the teacher's own choice to keep the wire/import format decoupled
// from the domain model it produces.
type Template struct {
	SchemaVersion string                 `yaml:"schema_version"`
	Metadata      map[string]interface{} `yaml:"metadata,omitempty"`
	Nodes         []TemplateNode         `yaml:"nodes"`
}

// TemplateNode is one node entry of a Template. Kind-specific fields are
// left as a raw map (Config) and decoded into the matching node.Config
// kind extension by a JSON round-trip, since node.Config's kind-specific
// structs already carry the right json tags.
type TemplateNode struct {
	ID             string                           `yaml:"id"`
	Kind           string                           `yaml:"kind"`
	Name           string                           `yaml:"name,omitempty"`
	Dependencies   []string                         `yaml:"dependencies,omitempty"`
	InputMappings  map[string]TemplateInputMapping  `yaml:"input_mappings,omitempty"`
	OutputMappings map[string]string                `yaml:"output_mappings,omitempty"`
	InputSchema    map[string]string                `yaml:"input_schema,omitempty"`
	OutputSchema   map[string]string                `yaml:"output_schema,omitempty"`
	UseCache       bool                             `yaml:"use_cache,omitempty"`
	TimeoutSeconds *int                             `yaml:"timeout_seconds,omitempty"`
	Retries        int                              `yaml:"retries,omitempty"`
	BackoffSeconds float64                          `yaml:"backoff_seconds,omitempty"`
	Config         map[string]interface{}           `yaml:",inline"`
}

// TemplateInputMapping mirrors node.InputMapping in YAML form.
type TemplateInputMapping struct {
	SourceNodeID     string `yaml:"source_node_id"`
	SourceOutputPath string `yaml:"source_output_path"`
}

// MaterializeFromYAML parses a Template and converts it to a node.Blueprint,
// applying configOverrides as a shallow merge onto the template's metadata
// (the authoring tier's equivalent of Workflow-kind's config_overrides,
// applied here at materialization time instead of at node-execution time).
// Per spec.md §9 "Builder tier produces blueprints that MUST validate under
// §3", the resulting Blueprint is validated before being returned.
func MaterializeFromYAML(data []byte, configOverrides map[string]interface{}) (*node.Blueprint, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "blueprint.materialize", err)
	}
	if len(tmpl.Nodes) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "blueprint.materialize",
			fmt.Errorf("template has no nodes"))
	}

	metadata := make(map[string]interface{}, len(tmpl.Metadata)+len(configOverrides))
	for k, v := range tmpl.Metadata {
		metadata[k] = v
	}
	for k, v := range configOverrides {
		metadata[k] = v
	}

	schemaVersion := tmpl.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = "1"
	}

	bp := &node.Blueprint{
		SchemaVersion: schemaVersion,
		Metadata:      metadata,
		Nodes:         make([]*node.Config, 0, len(tmpl.Nodes)),
	}

	for i, tn := range tmpl.Nodes {
		cfg, err := convertTemplateNode(tn)
		if err != nil {
			return nil, apperrors.New(apperrors.KindValidation, "blueprint.materialize",
				fmt.Errorf("nodes[%d] (%s): %w", i, tn.ID, err))
		}
		bp.Nodes = append(bp.Nodes, cfg)
	}

	if err := bp.Validate(); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "blueprint.materialize", err)
	}
	return bp, nil
}

func convertTemplateNode(tn TemplateNode) (*node.Config, error) {
	inputMappings := make(map[string]node.InputMapping, len(tn.InputMappings))
	for k, m := range tn.InputMappings {
		inputMappings[k] = node.InputMapping{SourceNodeID: m.SourceNodeID, SourceOutputPath: m.SourceOutputPath}
	}

	cfg := &node.Config{
		ID:             tn.ID,
		Kind:           node.Kind(tn.Kind),
		Name:           tn.Name,
		Dependencies:   tn.Dependencies,
		InputMappings:  inputMappings,
		OutputMappings: tn.OutputMappings,
		InputSchema:    node.Schema(tn.InputSchema),
		OutputSchema:   node.Schema(tn.OutputSchema),
		UseCache:       tn.UseCache,
		TimeoutSeconds: tn.TimeoutSeconds,
		Retries:        tn.Retries,
		BackoffSeconds: tn.BackoffSeconds,
	}

	if len(tn.Config) == 0 {
		return cfg, nil
	}
	raw, err := json.Marshal(tn.Config)
	if err != nil {
		return nil, fmt.Errorf("re-marshal kind config: %w", err)
	}

	var target interface{}
	switch cfg.Kind {
	case node.KindTool:
		cfg.Tool = &node.ToolConfig{}
		target = cfg.Tool
	case node.KindLLM:
		cfg.LLM = &node.LLMConfig{}
		target = cfg.LLM
	case node.KindAgent:
		cfg.Agent = &node.AgentConfig{}
		target = cfg.Agent
	case node.KindCondition:
		cfg.Condition = &node.ConditionConfig{}
		target = cfg.Condition
	case node.KindLoop:
		cfg.Loop = &node.LoopConfig{}
		target = cfg.Loop
	case node.KindParallel:
		cfg.Parallel = &node.ParallelConfig{}
		target = cfg.Parallel
	case node.KindWorkflow:
		cfg.Workflow = &node.WorkflowConfig{}
		target = cfg.Workflow
	case node.KindRecursive:
		cfg.Recursive = &node.RecursiveConfig{}
		target = cfg.Recursive
	case node.KindCode:
		cfg.Code = &node.CodeConfig{}
		target = cfg.Code
	default:
		return cfg, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode kind config: %w", err)
	}
	return cfg, nil
}
