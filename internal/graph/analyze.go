package graph

import (
	"slices"
	"sort"
)

// Cycle is one detected dependency cycle, members in path order starting from
// the first member the traversal reached.
type Cycle struct {
	Members []string
}

// Analysis is the result of one graph analysis. Cycles are returned as data
// alongside a successful result rather than as an error, so work unaffected
// by a cycle can still progress.
type Analysis struct {
	Cycles  []Cycle
	blocked map[string]bool
}

// IsBlocked reports whether id is cyclic or transitively depends on a cyclic
// node.
func (a *Analysis) IsBlocked(id string) bool { return a.blocked[id] }

// Blocked returns every blocked node id in sorted order.
func (a *Analysis) Blocked() []string {
	out := make([]string, 0, len(a.blocked))
	for id := range a.blocked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// Analyze runs cycle detection and blocking propagation. Zero nodes fail with
// *EmptyGraphError; cycles never fail the analysis.
func (g *Graph) Analyze() (*Analysis, error) {
	if g.Len() == 0 {
		return nil, &EmptyGraphError{}
	}

	a := &Analysis{blocked: make(map[string]bool)}

	// Three-color DFS over the deterministic id order. Every back edge (an
	// edge into a gray node) yields one recorded cycle; independent cycles
	// each contribute exactly one back edge.
	color := make(map[string]int, g.Len())
	var path []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = colorGray
		path = append(path, id)
		for _, dep := range g.nodes[id].DirectDependencies {
			switch color[dep] {
			case colorWhite:
				visit(dep)
			case colorGray:
				start := slices.Index(path, dep)
				a.Cycles = append(a.Cycles, Cycle{Members: slices.Clone(path[start:])})
			}
		}
		path = path[:len(path)-1]
		color[id] = colorBlack
	}
	for _, id := range g.order {
		if color[id] == colorWhite {
			visit(id)
		}
	}

	// A node whose dependency can never resolve can itself never become
	// ready: mark every cycle member and all its transitive dependents.
	for _, cycle := range a.Cycles {
		for _, member := range cycle.Members {
			if a.blocked[member] {
				continue
			}
			a.blocked[member] = true
			for _, dependent := range g.TransitiveDependents(member) {
				a.blocked[dependent] = true
			}
		}
	}
	return a, nil
}
