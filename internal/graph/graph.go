// Package graph implements C3: building a DAG from a node list, computing
// topological levels via Kahn's algorithm, and deriving schedule metrics.
package graph

import (
	"fmt"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// DAG is the built dependency graph: adjacency derived from each node's
// Dependencies list (spec.md §3 - there is no separate Edge type, unlike the
// teacher's Node+Edge representation; edges are implicit in Dependencies).
type DAG struct {
	Nodes     []*node.Config
	ByID      map[string]*node.Config
	Parents   map[string][]string // node id -> dependency ids
	Children  map[string][]string // node id -> ids that depend on it
	Levels    [][]string          // Levels[i] = node ids at level i
	LevelOf   map[string]int
}

// Build constructs a DAG from an ordered node list, per spec.md §4.1.
// Fails with a Validation-kind error on a missing dependency id or a cycle.
func Build(nodes []*node.Config) (*DAG, error) {
	d := &DAG{
		Nodes:    nodes,
		ByID:     make(map[string]*node.Config, len(nodes)),
		Parents:  make(map[string][]string, len(nodes)),
		Children: make(map[string][]string, len(nodes)),
		LevelOf:  make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		d.ByID[n.ID] = n
	}
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			if _, ok := d.ByID[dep]; !ok {
				return nil, apperrors.NewNode(apperrors.KindValidation, "graph.build", n.ID,
					fmt.Errorf("missing_dep: dependency %q not found", dep))
			}
			d.Parents[n.ID] = append(d.Parents[n.ID], dep)
			d.Children[dep] = append(d.Children[dep], n.ID)
		}
	}

	levels, err := topologicalLevels(d)
	if err != nil {
		return nil, err
	}
	d.Levels = levels
	for i, ids := range levels {
		for _, id := range ids {
			d.LevelOf[id] = i
			if c := d.ByID[id]; c != nil {
				c.Level = i
			}
		}
	}
	return d, nil
}

// topologicalLevels runs Kahn's algorithm, producing waves where
// level(n) = 1 + max(level(p) for p in dependencies(n)), base 0 for roots.
// A cycle is any point where in-degree-zero nodes run out while unprocessed
// nodes remain.
func topologicalLevels(d *DAG) ([][]string, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for _, n := range d.Nodes {
		inDegree[n.ID] = len(d.Parents[n.ID])
	}

	var levels [][]string
	remaining := len(d.Nodes)
	processed := make(map[string]bool, len(d.Nodes))

	for remaining > 0 {
		var wave []string
		for _, n := range d.Nodes { // stable order: input order, not map order
			if !processed[n.ID] && inDegree[n.ID] == 0 {
				wave = append(wave, n.ID)
			}
		}
		if len(wave) == 0 {
			return nil, apperrors.New(apperrors.KindValidation, "graph.build",
				fmt.Errorf("cycle: dependency graph has a cycle"))
		}
		for _, id := range wave {
			processed[id] = true
			remaining--
			for _, child := range d.Children[id] {
				inDegree[child]--
			}
		}
		levels = append(levels, wave)
	}
	return levels, nil
}

// Metrics are the derived, lazily-computed schedule metrics spec.md §4.1
// names: critical-path length, per-node degree, betweenness, bottleneck
// set, and parallel-opportunity levels.
type Metrics struct {
	CriticalPathLength int
	InDegree           map[string]int
	OutDegree          map[string]int
	Betweenness        map[string]int // |ancestors| * |descendants|
	Bottlenecks        []string       // out-degree > 3
	ParallelLevels     []int          // level indices with > 1 node
}

// ComputeMetrics derives Metrics from a built DAG. Cheap enough to compute
// eagerly; callers that want caching should memoize the result themselves,
// matching spec.md's "computed lazily and cached" guidance.
func ComputeMetrics(d *DAG) *Metrics {
	m := &Metrics{
		InDegree:    make(map[string]int, len(d.Nodes)),
		OutDegree:   make(map[string]int, len(d.Nodes)),
		Betweenness: make(map[string]int, len(d.Nodes)),
	}
	for _, n := range d.Nodes {
		m.InDegree[n.ID] = len(d.Parents[n.ID])
		m.OutDegree[n.ID] = len(d.Children[n.ID])
		if m.OutDegree[n.ID] > 3 {
			m.Bottlenecks = append(m.Bottlenecks, n.ID)
		}
	}
	for _, n := range d.Nodes {
		ancestors := countReachable(d.Parents, n.ID)
		descendants := countReachable(d.Children, n.ID)
		m.Betweenness[n.ID] = ancestors * descendants
	}
	m.CriticalPathLength = len(d.Levels)
	for i, ids := range d.Levels {
		if len(ids) > 1 {
			m.ParallelLevels = append(m.ParallelLevels, i)
		}
	}
	return m
}

// countReachable walks adj (Parents for ancestors, Children for
// descendants) from start and counts the distinct nodes reached - the
// "how many upstream/downstream nodes route through here" half of
// Betweenness, which is |ancestors| * |descendants|: a DAG has no single
// shortest path to weight, so centrality here means "lies on every path
// connecting some ancestor to some descendant".
func countReachable(adj map[string][]string, start string) int {
	visited := make(map[string]bool)
	queue := append([]string{}, adj[start]...)
	for _, id := range queue {
		visited[id] = true
	}
	for i := 0; i < len(queue); i++ {
		for _, next := range adj[queue[i]] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return len(visited)
}
