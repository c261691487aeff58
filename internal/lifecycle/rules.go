// Package lifecycle defines the project state machine as a pure decision
// table. Whether a transition is legal in principle is answerable with zero
// I/O; persistence and locking live elsewhere.
package lifecycle

import (
	"fmt"
	"slices"
)

// State is a lifecycle phase tag.
type State string

// TransitionKind classifies a (current, target) pair.
type TransitionKind string

const (
	TransitionNormal   TransitionKind = "normal"
	TransitionRecovery TransitionKind = "recovery"
	TransitionSkip     TransitionKind = "skip"
	TransitionDenied   TransitionKind = "denied"
)

// Rule declares the legal exits from one state. Required states cannot be
// bypassed by a skip.
type Rule struct {
	NormalNext      []State `yaml:"normal_next" json:"normal_next"`
	RecoveryTargets []State `yaml:"recovery_targets" json:"recovery_targets"`
	SkipTargets     []State `yaml:"skip_targets" json:"skip_targets"`
	Required        bool    `yaml:"required" json:"required"`
}

// Rules is the full validated decision table plus the declared pipeline
// order, which SkipTo uses to find the stages strictly between two states.
type Rules struct {
	order  []State
	states map[State]Rule
}

// NewRules validates the table and returns it. Every state referenced by a
// rule must itself be declared; unreachable targets fail closed at
// construction, not at transition time.
func NewRules(order []State, table map[State]Rule) (*Rules, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("lifecycle: no states declared")
	}
	if len(order) != len(table) {
		return nil, fmt.Errorf("lifecycle: order lists %d states but table declares %d", len(order), len(table))
	}
	seen := make(map[State]bool, len(order))
	for _, s := range order {
		if seen[s] {
			return nil, fmt.Errorf("lifecycle: state %q declared twice", s)
		}
		seen[s] = true
		if _, ok := table[s]; !ok {
			return nil, fmt.Errorf("lifecycle: state %q in order but missing from table", s)
		}
	}
	for state, rule := range table {
		for _, group := range [][]State{rule.NormalNext, rule.RecoveryTargets, rule.SkipTargets} {
			for _, target := range group {
				if !seen[target] {
					return nil, fmt.Errorf("lifecycle: state %q references undeclared state %q", state, target)
				}
			}
		}
	}
	return &Rules{order: slices.Clone(order), states: table}, nil
}

// Declared reports whether s is part of the table.
func (r *Rules) Declared(s State) bool {
	_, ok := r.states[s]
	return ok
}

// States returns the declared pipeline order.
func (r *Rules) States() []State {
	return slices.Clone(r.order)
}

// Initial returns the first state of the pipeline.
func (r *Rules) Initial() State {
	return r.order[0]
}

// ValidTransitions returns every state legally reachable from current
// through any kind of transition (normal, recovery, or skip).
func (r *Rules) ValidTransitions(current State) []State {
	rule, ok := r.states[current]
	if !ok {
		return nil
	}
	var out []State
	appendUnique := func(targets []State) {
		for _, t := range targets {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	appendUnique(rule.NormalNext)
	appendUnique(rule.RecoveryTargets)
	appendUnique(rule.SkipTargets)
	return out
}

// NormalNext returns the ordinary forward targets from current.
func (r *Rules) NormalNext(current State) []State {
	return slices.Clone(r.states[current].NormalNext)
}

// RecoveryOptions returns the validated backward targets from current.
func (r *Rules) RecoveryOptions(current State) []State {
	return slices.Clone(r.states[current].RecoveryTargets)
}

// SkipOptions returns the forward skip targets from current.
func (r *Rules) SkipOptions(current State) []State {
	return slices.Clone(r.states[current].SkipTargets)
}

// IsRequired reports whether s cannot be bypassed by a skip.
func (r *Rules) IsRequired(s State) bool {
	return r.states[s].Required
}

// Kind classifies (current, target). Recovery wins over skip when a target
// appears in both lists, since a backward transition is never a skip.
func (r *Rules) Kind(current, target State) TransitionKind {
	rule, ok := r.states[current]
	if !ok || !r.Declared(target) {
		return TransitionDenied
	}
	if slices.Contains(rule.NormalNext, target) {
		return TransitionNormal
	}
	if slices.Contains(rule.RecoveryTargets, target) {
		return TransitionRecovery
	}
	if slices.Contains(rule.SkipTargets, target) {
		return TransitionSkip
	}
	return TransitionDenied
}

// Between returns the states strictly between current and target in declared
// pipeline order. Used by SkipTo to verify no required stage is bypassed.
func (r *Rules) Between(current, target State) []State {
	ci := slices.Index(r.order, current)
	ti := slices.Index(r.order, target)
	if ci < 0 || ti < 0 || ti <= ci+1 {
		return nil
	}
	return slices.Clone(r.order[ci+1 : ti])
}

// RequiredBetween returns the required stages strictly between current and
// target, the set that makes a skip fail closed.
func (r *Rules) RequiredBetween(current, target State) []State {
	var out []State
	for _, s := range r.Between(current, target) {
		if r.states[s].Required {
			out = append(out, s)
		}
	}
	return out
}
