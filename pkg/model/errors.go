package model

import (
	"errors"
	"fmt"
)

// ErrAlreadyProcessed is returned by the result writer when a run's
// ledger record is already PROCESSED. It signals a duplicate-submission
// bug upstream and must never be silently ignored.
var ErrAlreadyProcessed = errors.New("run is already processed")

// ErrMissingRecord is returned when a result arrives for a run the
// ledger has never seen and self-healing insertion was not requested.
var ErrMissingRecord = errors.New("run has no ledger record")

// DuplicateEventsError reports that a single source file contained the
// same event number more than once. The record is marked ERROR and the
// source file is preserved for inspection.
type DuplicateEventsError struct {
	Run     RunKey
	EventNr int
}

func (e *DuplicateEventsError) Error() string {
	return fmt.Sprintf("run %s: event %d appears more than once in source file", e.Run, e.EventNr)
}

// InvalidTransitionError is returned when a status change violates the
// allowed lifecycle (NOT_PROCESSED may advance exactly once).
type InvalidTransitionError struct {
	Run  RunKey
	From ProcessStatus
	To   ProcessStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("run %s: invalid status transition %s -> %s", e.Run, e.From, e.To)
}
