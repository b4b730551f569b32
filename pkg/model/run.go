package model

import "fmt"

// RunKey identifies a single telescope run. Nights are encoded as
// YYYYMMDD integers; run IDs are unique within a night.
type RunKey struct {
	Night int `json:"night"`
	RunID int `json:"run_id"`
}

// String renders the key in the canonical NNNNNNNN_RRR form used in
// file basenames and scheduler job names.
func (k RunKey) String() string {
	return fmt.Sprintf("%08d_%03d", k.Night, k.RunID)
}

// ProcessingRecord is one ledger row per run: what format its raw file
// was found in, how far processing got, and on which filesystems the
// file is currently available.
type ProcessingRecord struct {
	RunKey
	// Extension is the raw-file suffix found on disk ("fz" or "gz"),
	// or empty if the file was not present on any probed filesystem.
	Extension string        `json:"extension"`
	Status    ProcessStatus `json:"status"`
	// Available maps filesystem name to current file availability.
	// The set of filesystems is configuration, not schema.
	Available map[string]bool `json:"available"`
}

// AvailableOn reports whether the run's raw file is present on the
// named filesystem.
func (r *ProcessingRecord) AvailableOn(fs string) bool {
	return r.Available[fs]
}

// CatalogRun is one scientifically eligible run from the external run
// catalog, independent of whether its file exists anywhere.
type CatalogRun struct {
	RunKey
}

// RunType classifies the observation mode of a run file. Only data and
// pedestal runs produce event records.
type RunType int

const (
	RunTypeData     RunType = 1
	RunTypePedestal RunType = 2
	RunTypeCustom   RunType = 100
)

// ParseRunType maps the RUNTYPE header string of a run file onto its
// numeric run type. The second return value reports whether files of
// this type are processable at all.
func ParseRunType(s string) (RunType, bool) {
	switch s {
	case "data":
		return RunTypeData, true
	case "pedestal":
		return RunTypePedestal, true
	case "custom":
		return RunTypeCustom, false
	}
	return 0, false
}

// Event is a single telescope trigger extracted from a run file.
// (night, runId, eventNr) is unique across the whole event table.
type Event struct {
	Night      int     `json:"night"`
	RunID      int     `json:"run_id"`
	EventNr    int     `json:"event_nr"`
	UTCSeconds int64   `json:"utc"`
	UTCMicros  int64   `json:"utc_us"`
	EventType  int     `json:"event_type"`
	RunType    RunType `json:"run_type"`
}

// Key returns the run the event belongs to.
func (e Event) Key() RunKey {
	return RunKey{Night: e.Night, RunID: e.RunID}
}
