package enums

import "fmt"

// PendingOp is the remote operation recorded in the pending_writes queue.
type PendingOp string

const (
	PendingOpSet    PendingOp = "set"
	PendingOpRemove PendingOp = "remove"
)

var validPendingOps = []PendingOp{
	PendingOpSet,
	PendingOpRemove,
}

// IsValid reports whether the value matches a known pending operation.
func (p PendingOp) IsValid() bool {
	for _, candidate := range validPendingOps {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePendingOp converts raw input into PendingOp.
func ParsePendingOp(value string) (PendingOp, error) {
	for _, candidate := range validPendingOps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pending op %q", value)
}
