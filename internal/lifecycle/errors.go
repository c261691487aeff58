package lifecycle

import (
	"errors"
	"fmt"
)

// InvalidTransitionError is returned when (current, target) is absent from
// the rule table. It always names the actually-valid targets; the core never
// auto-corrects a denied transition.
type InvalidTransitionError struct {
	From  State
	To    State
	Valid []State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (valid targets: %v)", e.From, e.To, e.Valid)
}

// IsInvalidTransition reports whether err is a rule-table denial.
func IsInvalidTransition(err error) bool {
	var ie *InvalidTransitionError
	return errors.As(err, &ie)
}

// SkipBlockedError is returned when a skip would bypass required stages.
type SkipBlockedError struct {
	From            State
	To              State
	RequiredSkipped []State
}

func (e *SkipBlockedError) Error() string {
	return fmt.Sprintf("cannot skip %s -> %s: required stages %v would be bypassed", e.From, e.To, e.RequiredSkipped)
}

// IsSkipBlocked reports whether err is a blocked skip.
func IsSkipBlocked(err error) bool {
	var se *SkipBlockedError
	return errors.As(err, &se)
}
