package fold

import "fmt"

// InvariantViolation is the panic value raised when the three buckets
// disagree about a key. It signals a defect in the folding rules, never bad
// input.
type InvariantViolation struct {
	Key    string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("fold invariant violated for key %s: %s", e.Key, e.Reason)
}
