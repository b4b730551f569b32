// Package eventdata turns run files into event records. Binary FITS
// and zFITS decoding is not done here: it is delegated to an external
// reader tool that emits the CSV form this package understands.
package eventdata

import (
	"context"
	"fmt"

	"github.com/fact-project/eventlist/pkg/model"
)

// RunData is the parsed content of one run file.
type RunData struct {
	Run     model.RunKey
	RunType model.RunType
	Events  []model.Event
}

// Reader parses a single run file into event records.
type Reader interface {
	Read(ctx context.Context, path string) (*RunData, error)
}

// CheckDuplicates scans a candidate event batch for a repeated event
// number. Callers must run this before handing the batch to the result
// writer; a duplicate means the source file is corrupt and the run must
// be marked ERROR, with the file preserved for inspection.
func CheckDuplicates(run model.RunKey, events []model.Event) error {
	seen := make(map[int]struct{}, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.EventNr]; dup {
			return &model.DuplicateEventsError{Run: run, EventNr: ev.EventNr}
		}
		seen[ev.EventNr] = struct{}{}
	}
	return nil
}

// validateRun checks that every event belongs to the run the file name
// claims.
func validateRun(run model.RunKey, events []model.Event) error {
	for _, ev := range events {
		if ev.Key() != run {
			return fmt.Errorf("event %d belongs to run %s, file claims %s", ev.EventNr, ev.Key(), run)
		}
	}
	return nil
}
