// Package stage defines the result type pipeline stages return instead of
// errors when they can still produce a usable value.
package stage

// Outcome is the result of a stage that degrades rather than fails.
// Value is always usable; Reason is set when the stage fell back.
type Outcome[T any] struct {
	Value  T
	Reason error
}

// Ok wraps a value produced without degradation.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degraded wraps a fallback value and the reason the stage fell back.
func Degraded[T any](v T, reason error) Outcome[T] {
	return Outcome[T]{Value: v, Reason: reason}
}

// IsDegraded reports whether the stage fell back.
func (o Outcome[T]) IsDegraded() bool {
	return o.Reason != nil
}
