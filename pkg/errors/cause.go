package errors

import "reflect"

// MaxCauseDepth bounds how many non-comparable links RootCause follows.
// Comparable links are tracked for cycles and are not counted.
const MaxCauseDepth = 64

// RootCause walks the Unwrap chain of err and returns its earliest cause.
//
// An error without a cause is returned unchanged. For multi-cause errors
// (Unwrap() []error) the first non-nil cause is followed. Cyclic chains,
// which occur in practice with some Google API client errors, stop at the last
// node before the cycle closes. Acyclic chains are followed to the end at any
// depth. Non-comparable errors cannot be checked for cycles, so after
// MaxCauseDepth of them the walk stops at the node reached.
func RootCause(err error) error {
	if err == nil {
		return nil
	}

	current := err
	seen := make(map[error]struct{})
	blind := 0

	for {
		next := cause(current)
		if next == nil {
			return current
		}

		if isComparable(current) {
			seen[current] = struct{}{}
		} else {
			blind++
			if blind > MaxCauseDepth {
				return current
			}
		}
		if isComparable(next) {
			if _, ok := seen[next]; ok {
				return current
			}
		}

		current = next
	}
}

// cause returns the direct cause of err, or nil when there is none.
func cause(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if inner != nil {
				return inner
			}
		}
	}
	return nil
}

func isComparable(err error) bool {
	return reflect.TypeOf(err).Comparable()
}
