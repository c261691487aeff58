// Package scheduler picks the next executable issue from an analyzed
// dependency graph. Ordering is fully deterministic: identical graph and
// completion state always yields the identical sequence.
package scheduler

import (
	"sort"
	"time"

	"git.home.luguber.info/inful/agentcoord/internal/graph"
	"git.home.luguber.info/inful/agentcoord/internal/metrics"
)

// Scheduler wraps one analyzed graph. Completion flags are owned by the
// dispatch layer and passed in per call; the scheduler holds no mutable state.
type Scheduler struct {
	graph    *graph.Graph
	analysis *graph.Analysis
	depths   map[string]int
	recorder metrics.Recorder
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// New analyzes g and returns a scheduler over it. Zero nodes fail with
// *graph.EmptyGraphError; cycles do not fail, affected nodes just never
// become executable.
func New(g *graph.Graph, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{graph: g, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}

	start := time.Now()
	analysis, err := g.Analyze()
	if err != nil {
		return nil, err
	}
	s.analysis = analysis
	s.depths = s.computeDepths()

	s.recorder.ObserveAnalysisDuration(time.Since(start))
	s.recorder.SetGraphSize(g.Len(), g.EdgeCount())
	s.recorder.SetBlockedNodes(len(analysis.Blocked()))
	return s, nil
}

// Analysis returns the cycle/blocking analysis this scheduler was built from.
func (s *Scheduler) Analysis() *graph.Analysis { return s.analysis }

// computeDepths assigns each non-blocked node the length of its longest
// dependency chain. A non-blocked node's dependencies are all non-blocked
// (blocking is transitive over dependents), so the recursion never meets a
// cycle.
func (s *Scheduler) computeDepths() map[string]int {
	depths := make(map[string]int, s.graph.Len())
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := depths[id]; ok {
			return d
		}
		max := 0
		for _, dep := range s.graph.Dependencies(id) {
			if d := depth(dep) + 1; d > max {
				max = d
			}
		}
		depths[id] = max
		return max
	}
	for _, id := range s.graph.IDs() {
		if !s.analysis.IsBlocked(id) {
			depth(id)
		}
	}
	return depths
}

// Depth returns the longest dependency chain below id. Blocked nodes have no
// defined depth and report -1.
func (s *Scheduler) Depth(id string) int {
	if s.analysis.IsBlocked(id) {
		return -1
	}
	d, ok := s.depths[id]
	if !ok {
		return -1
	}
	return d
}

// ExecutableIssues returns every non-completed, non-blocked node whose direct
// dependencies are all completed, ordered by priority hint descending, then
// depth ascending, then id ascending.
func (s *Scheduler) ExecutableIssues(completed map[string]bool) []string {
	var ready []string
	for _, id := range s.graph.IDs() {
		if completed[id] || s.analysis.IsBlocked(id) {
			continue
		}
		allDone := true
		for _, dep := range s.graph.Dependencies(id) {
			if !completed[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := s.graph.Node(ready[i]), s.graph.Node(ready[j])
		if a.PriorityHint != b.PriorityHint {
			return a.PriorityHint > b.PriorityHint
		}
		if s.depths[a.ID] != s.depths[b.ID] {
			return s.depths[a.ID] < s.depths[b.ID]
		}
		return a.ID < b.ID
	})
	return ready
}

// NextExecutableIssue returns the head of the executable ordering, or false
// when nothing is ready.
func (s *Scheduler) NextExecutableIssue(completed map[string]bool) (string, bool) {
	ready := s.ExecutableIssues(completed)
	if len(ready) == 0 {
		return "", false
	}
	return ready[0], true
}

// DependsOn reports whether a transitively depends on b.
func (s *Scheduler) DependsOn(a, b string) bool {
	return s.graph.DependsOn(a, b)
}

// Dependencies returns the direct dependencies of id.
func (s *Scheduler) Dependencies(id string) []string {
	return s.graph.Dependencies(id)
}

// Dependents returns the direct dependents of id.
func (s *Scheduler) Dependents(id string) []string {
	return s.graph.Dependents(id)
}

// TransitiveDependencies returns the full dependency closure of id.
func (s *Scheduler) TransitiveDependencies(id string) []string {
	return s.graph.TransitiveDependencies(id)
}

// Statistics summarizes the graph shape.
type Statistics struct {
	TotalNodes int
	TotalEdges int
	MaxDepth   int
	RootNodes  []string
	LeafNodes  []string
}

// Statistics reports node/edge counts, the longest dependency chain, and the
// root (zero dependencies) and leaf (zero dependents) nodes.
func (s *Scheduler) Statistics() Statistics {
	st := Statistics{
		TotalNodes: s.graph.Len(),
		TotalEdges: s.graph.EdgeCount(),
	}
	for _, id := range s.graph.IDs() {
		if len(s.graph.Dependencies(id)) == 0 {
			st.RootNodes = append(st.RootNodes, id)
		}
		if len(s.graph.Dependents(id)) == 0 {
			st.LeafNodes = append(st.LeafNodes, id)
		}
		if d, ok := s.depths[id]; ok && d > st.MaxDepth {
			st.MaxDepth = d
		}
	}
	return st
}
