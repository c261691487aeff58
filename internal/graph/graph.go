// Package graph models the issue dependency graph consumed by the scheduler.
// A graph is ephemeral: it is rebuilt fresh from the raw spec on every
// scheduling call and is never itself the source of truth.
package graph

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// NodeSpec is one raw node as supplied by the dispatch layer.
type NodeSpec struct {
	ID           string   `json:"id" yaml:"id"`
	DependsOn    []string `json:"dependsOn,omitempty" yaml:"depends_on,omitempty"`
	PriorityHint int      `json:"priorityHint,omitempty" yaml:"priority_hint,omitempty"`
}

// Spec is the raw dependency spec consumed at the boundary. Plain data only;
// no live handler references cross into this package.
type Spec struct {
	Nodes []NodeSpec `json:"nodes" yaml:"nodes"`
}

// ParseSpec decodes a JSON dependency spec.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse dependency spec: %w", err)
	}
	return &s, nil
}

// ParseSpecYAML decodes a YAML dependency spec, the format used by spec files
// checked in next to the coordinator config.
func ParseSpecYAML(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse dependency spec: %w", err)
	}
	return &s, nil
}

// Node is one resolved graph node. DirectDependents is always the exact
// transpose of DirectDependencies across the whole graph.
type Node struct {
	ID                 string
	DirectDependencies []string
	DirectDependents   []string
	PriorityHint       int
}

// Graph is a validated dependency graph.
type Graph struct {
	nodes map[string]*Node
	order []string // sorted ids, the deterministic traversal order
	edges int
}

// Build validates the spec and constructs the graph. Every referenced id must
// exist and every id must be unique; violations return *ValidationError.
func Build(spec *Spec) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node, len(spec.Nodes))}

	var problems []string
	for _, ns := range spec.Nodes {
		if ns.ID == "" {
			problems = append(problems, "node with empty id")
			continue
		}
		if _, dup := g.nodes[ns.ID]; dup {
			problems = append(problems, fmt.Sprintf("node %q declared twice", ns.ID))
			continue
		}
		g.nodes[ns.ID] = &Node{
			ID:                 ns.ID,
			DirectDependencies: slices.Clone(ns.DependsOn),
			PriorityHint:       ns.PriorityHint,
		}
		g.order = append(g.order, ns.ID)
	}
	for _, ns := range spec.Nodes {
		for _, dep := range ns.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				problems = append(problems, fmt.Sprintf("node %q depends on undeclared node %q", ns.ID, dep))
			}
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	sort.Strings(g.order)
	for _, id := range g.order {
		node := g.nodes[id]
		sort.Strings(node.DirectDependencies)
		g.edges += len(node.DirectDependencies)
		for _, dep := range node.DirectDependencies {
			g.nodes[dep].DirectDependents = append(g.nodes[dep].DirectDependents, id)
		}
	}
	return g, nil
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.order) }

// EdgeCount returns the total number of dependency edges.
func (g *Graph) EdgeCount() int { return g.edges }

// IDs returns every node id in sorted order.
func (g *Graph) IDs() []string { return slices.Clone(g.order) }

// Node returns the node for id, or nil if undeclared.
func (g *Graph) Node(id string) *Node { return g.nodes[id] }

// Dependencies returns the direct dependencies of id in sorted order.
func (g *Graph) Dependencies(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return slices.Clone(n.DirectDependencies)
}

// Dependents returns the direct dependents of id in sorted order.
func (g *Graph) Dependents(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return slices.Clone(n.DirectDependents)
}

// TransitiveDependencies returns the full dependency closure of id in sorted
// order, correct even when unrelated cycles exist elsewhere in the graph.
func (g *Graph) TransitiveDependencies(id string) []string {
	return g.closure(id, func(n *Node) []string { return n.DirectDependencies })
}

// TransitiveDependents returns the full dependent closure of id in sorted
// order.
func (g *Graph) TransitiveDependents(id string) []string {
	return g.closure(id, func(n *Node) []string { return n.DirectDependents })
}

// DependsOn reports whether a transitively depends on b.
func (g *Graph) DependsOn(a, b string) bool {
	return slices.Contains(g.TransitiveDependencies(a), b)
}

// closure walks edges from id without revisiting nodes, so it terminates on
// cyclic graphs too.
func (g *Graph) closure(id string, next func(*Node) []string) []string {
	start := g.nodes[id]
	if start == nil {
		return nil
	}
	seen := map[string]bool{id: true}
	stack := slices.Clone(next(start))
	var out []string
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, next(g.nodes[cur])...)
	}
	sort.Strings(out)
	return out
}
