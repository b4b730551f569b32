package submitter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/rawdata"
)

// Reconciler syncs the ledger's availability flags for one filesystem
// with what is actually on disk. Files appear when data is copied in
// and disappear when a site archives to tape; the ledger only learns
// about either here.
type Reconciler struct {
	ledger     ledger.Store
	filesystem string
	rawRoot    string
	logger     *slog.Logger
}

// NewReconciler creates a reconciliation pass for the given filesystem.
func NewReconciler(st ledger.Store, filesystem, rawRoot string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger:     st,
		filesystem: filesystem,
		rawRoot:    rawRoot,
		logger:     logger.With("component", "reconcile"),
	}
}

// Reconcile walks the raw tree once and updates every ledger record
// whose availability flag disagrees with the filesystem. Records whose
// file was absent at discovery time get their extension filled in when
// the file has since appeared. It returns the number of records
// updated.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	passID := uuid.New().String()
	log := r.logger.With("pass_id", passID)

	files, err := rawdata.ListRunFiles(r.rawRoot)
	if err != nil {
		return 0, fmt.Errorf("scan raw tree: %w", err)
	}

	records, err := r.ledger.ListRecords(ctx, ledger.Filter{})
	if err != nil {
		return 0, fmt.Errorf("list ledger records: %w", err)
	}
	log.Info("reconciliation started", "filesystem", r.filesystem,
		"files", len(files), "records", len(records))

	updated := 0
	for _, rec := range records {
		path, present := files[rec.RunKey]

		if present && rec.Extension == "" {
			if err := r.ledger.SetExtension(ctx, rec.RunKey, rawdata.Extension(path)); err != nil {
				return updated, fmt.Errorf("set extension for %s: %w", rec.RunKey, err)
			}
			log.Info("file appeared", "run", rec.RunKey.String(), "file", path)
		}

		if present == rec.AvailableOn(r.filesystem) {
			continue
		}
		if err := r.ledger.SetAvailability(ctx, rec.RunKey, r.filesystem, present); err != nil {
			return updated, fmt.Errorf("set availability for %s: %w", rec.RunKey, err)
		}
		updated++
	}

	log.Info("reconciliation finished", "updated", updated)
	return updated, nil
}
