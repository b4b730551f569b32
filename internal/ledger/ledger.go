package ledger

import (
	"context"

	"github.com/fact-project/eventlist/pkg/model"
)

// Filter narrows record listings.
type Filter struct {
	// Status restricts to one processing status when non-nil.
	Status *model.ProcessStatus
	// Night restricts to a single night when non-zero.
	Night int
	// Filesystem restricts to records whose file is available on the
	// named backend when non-empty.
	Filesystem string
	// Limit caps the number of returned records when positive.
	Limit int
}

// Store is the durable ledger of per-run processing state and the
// event list extracted from processed runs.
//
// Two transaction scopes exist and never overlap: a multi-row atomic
// batch insert for newly discovered runs, and a single-record atomic
// read-check-write for status transitions. Status may only advance
// NOT_PROCESSED -> PROCESSED or NOT_PROCESSED -> ERROR; the store
// enforces this, not caller discipline.
type Store interface {
	// InsertRecords inserts newly discovered runs in one atomic batch.
	// The ledger grows monotonically; nothing is ever deleted.
	InsertRecords(ctx context.Context, records []*model.ProcessingRecord) error

	// GetRecord returns the record for the run, or nil if unseen.
	GetRecord(ctx context.Context, key model.RunKey) (*model.ProcessingRecord, error)

	// ListKeys returns the set of runs the ledger has seen.
	ListKeys(ctx context.Context) (map[model.RunKey]struct{}, error)

	// ListRecords returns records matching the filter, ordered by
	// (night, runId).
	ListRecords(ctx context.Context, f Filter) ([]*model.ProcessingRecord, error)

	// SelectProcessable returns NOT_PROCESSED records whose file is
	// available on the named filesystem, ordered by (night, runId).
	SelectProcessable(ctx context.Context, filesystem string) ([]*model.ProcessingRecord, error)

	// SetAvailability records whether the run's file currently exists
	// on the named filesystem. Idempotent.
	SetAvailability(ctx context.Context, key model.RunKey, filesystem string, available bool) error

	// SetExtension fills in the raw-file extension for a run whose
	// file was absent at discovery time.
	SetExtension(ctx context.Context, key model.RunKey, extension string) error

	// MarkError forces the run into ERROR under the transition guard.
	MarkError(ctx context.Context, key model.RunKey) error

	// RecordResult is the result-writer transaction: look up the
	// record (self-healing insert when ignoreMissing is set), refuse
	// already-processed runs, bulk-insert the events, and advance the
	// status to PROCESSED — all as one atomic unit.
	RecordResult(ctx context.Context, key model.RunKey, extension string, ignoreMissing bool, events []model.Event) error

	// CountByStatus returns how many records exist per status.
	CountByStatus(ctx context.Context) (map[model.ProcessStatus]int, error)

	// CountEvents returns the number of stored events for one run.
	CountEvents(ctx context.Context, key model.RunKey) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
