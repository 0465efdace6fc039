// Package size models a Job's size attribute as a sum type instead of
// the "0 means unknown" convention of the source scheduler. Chained
// eviction (execpool) compares sizes within a category; that
// comparison is only meaningful when both sides are Known, so the
// zero value (Unknown) cannot silently compare as "smallest".
package size

import "strconv"

// Size is either Unknown or a known non-negative ordering key.
type Size struct {
	known bool
	value uint64
}

// Unknown returns the zero Size: "size not specified", which disables
// chaining for the Job that carries it.
func Unknown() Size { return Size{} }

// Known returns a Size carrying an explicit ordering value.
func Known(v uint64) Size { return Size{known: true, value: v} }

// IsKnown reports whether the size carries an explicit value.
func (s Size) IsKnown() bool { return s.known }

// Value returns the numeric value and whether it is known.
func (s Size) Value() (uint64, bool) { return s.value, s.known }

// GreaterOrEqual reports whether s >= other, and whether the
// comparison was meaningful (both sides Known). Callers must check
// the second return value before trusting the first: chained eviction
// treats an unknown-size Job as ungrouped, never as "smaller".
func (s Size) GreaterOrEqual(other Size) (result bool, comparable bool) {
	if !s.known || !other.known {
		return false, false
	}
	return s.value >= other.value, true
}

// String renders the size for logs and the observation endpoint.
func (s Size) String() string {
	if !s.known {
		return "unknown"
	}
	return strconv.FormatUint(s.value, 10)
}
