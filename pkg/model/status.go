package model

import "fmt"

// ProcessStatus represents the processing lifecycle state of a run.
// The numeric values are persisted in the ledger and must not change.
type ProcessStatus int

const (
	StatusNotProcessed ProcessStatus = 0
	StatusProcessed    ProcessStatus = 1
	StatusError        ProcessStatus = 2
)

// String returns the human-readable name of the status.
func (s ProcessStatus) String() string {
	switch s {
	case StatusNotProcessed:
		return "NOT_PROCESSED"
	case StatusProcessed:
		return "PROCESSED"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// IsTerminal returns true if the run has finished processing, one way
// or the other. Terminal runs are never selected for dispatch again.
func (s ProcessStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusError
}

// ValidStatusTransitions defines the allowed status transitions.
// A run advances away from NOT_PROCESSED exactly once.
var ValidStatusTransitions = map[ProcessStatus][]ProcessStatus{
	StatusNotProcessed: {StatusProcessed, StatusError},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s ProcessStatus) CanTransitionTo(next ProcessStatus) bool {
	for _, allowed := range ValidStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStatus converts a persisted numeric status into a ProcessStatus.
func ParseStatus(v int) (ProcessStatus, error) {
	switch s := ProcessStatus(v); s {
	case StatusNotProcessed, StatusProcessed, StatusError:
		return s, nil
	}
	return 0, fmt.Errorf("unknown process status %d", v)
}
