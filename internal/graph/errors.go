package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned when a dependency spec references nonexistent
// ids or declares an id twice. A dangling edge fails the whole build; dropping
// it silently would silently change scheduling semantics.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid dependency spec: %s", strings.Join(e.Problems, "; "))
}

// IsValidation reports whether err is a spec validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// EmptyGraphError is returned when analysis is asked for on zero nodes. An
// empty graph signals an upstream data problem, not a cyclic one, so unlike
// cycles it fails fast.
type EmptyGraphError struct{}

func (e *EmptyGraphError) Error() string {
	return "dependency graph has no nodes"
}

// IsEmptyGraph reports whether err is the zero-node failure.
func IsEmptyGraph(err error) bool {
	var ee *EmptyGraphError
	return errors.As(err, &ee)
}
