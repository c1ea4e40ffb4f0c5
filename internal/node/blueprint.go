package node

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// NewSentinel is the client-presented lock value that means "create a new
// blueprint" (spec.md §4.7/§6).
const NewSentinel = "__new__"

// Blueprint is spec.md §3's Blueprint: an ordered node list plus a
// content-hash version lock recomputed on every mutation.
type Blueprint struct {
	ID            string                 `json:"id"`
	SchemaVersion string                 `json:"schema_version" validate:"required"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Nodes         []*Config              `json:"nodes" validate:"required,dive"`
}

// GetNode returns the node with the given id, or nil.
func (b *Blueprint) GetNode(id string) *Config {
	for _, n := range b.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// canonicalJSON marshals v with map keys sorted and no extraneous whitespace,
// which Go's encoding/json already guarantees for map[string]X (keys are
// sorted) and for struct fields (field order is fixed) - so a direct
// Marshal is canonical here. Blueprint.Nodes order is significant and
// preserved as given (spec.md: "nodes (ordered)").
func canonicalJSON(b *Blueprint) ([]byte, error) {
	// Defensive: ensure nested metadata maps serialize with sorted keys too;
	// encoding/json already sorts map[string]interface{} keys, so a plain
	// Marshal satisfies "canonical JSON with sorted keys".
	clone := *b
	if clone.Metadata != nil {
		keys := make([]string, 0, len(clone.Metadata))
		for k := range clone.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	return json.Marshal(&clone)
}

// VersionLock computes SHA-256(canonical_json(blueprint)), hex-encoded.
func VersionLock(b *Blueprint) (string, error) {
	data, err := canonicalJSON(b)
	if err != nil {
		return "", fmt.Errorf("blueprint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Validate checks every node in the blueprint, plus the blueprint-level
// invariants spec.md §3 assigns to the whole graph: every dependency id must
// exist in the blueprint.
func (b *Blueprint) Validate() error {
	if err := structValidator.Struct(b); err != nil {
		return fmt.Errorf("blueprint: %w", err)
	}
	ids := make(map[string]bool, len(b.Nodes))
	for _, n := range b.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("blueprint: duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
	}
	for _, n := range b.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		for _, dep := range n.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("blueprint: node %s depends on missing node %q", n.ID, dep)
			}
		}
	}
	return nil
}

// Clone deep-copies a Blueprint via a JSON round-trip, matching the
// teacher's pkg/models/workflow.go Clone() idiom.
func (b *Blueprint) Clone() (*Blueprint, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var out Blueprint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
