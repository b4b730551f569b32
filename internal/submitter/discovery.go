// Package submitter coordinates the run catalog, the processing
// ledger, and the batch scheduler: it discovers eligible runs, records
// them, and feeds them to the cluster without losing or
// double-processing a run.
package submitter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fact-project/eventlist/internal/factdb"
	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/rawdata"
	"github.com/fact-project/eventlist/pkg/model"
)

// Discovery diffs the run catalog against the ledger and records runs
// the ledger has never seen.
type Discovery struct {
	ledger  ledger.Store
	catalog factdb.Catalog
	// filesystem is the backend probed for new files; rawRoot is its
	// raw-data mount.
	filesystem string
	rawRoot    string
	// filesystems is the full configured backend set; newly created
	// records carry an availability row per backend.
	filesystems []string
	logger      *slog.Logger
}

// NewDiscovery creates a discovery step probing the given filesystem.
func NewDiscovery(st ledger.Store, cat factdb.Catalog, filesystem, rawRoot string, filesystems []string, logger *slog.Logger) *Discovery {
	return &Discovery{
		ledger:      st,
		catalog:     cat,
		filesystem:  filesystem,
		rawRoot:     rawRoot,
		filesystems: filesystems,
		logger:      logger.With("component", "discovery"),
	}
}

// Discover fetches the eligible run set, subtracts the runs already in
// the ledger, probes the filesystem for each remainder, and inserts the
// new records as one atomic batch. limit > 0 truncates the batch. It
// returns the number of records inserted.
//
// A run whose file is missing from the probed filesystem is still
// recorded, with an empty extension and no availability; only the
// explicit reconciliation pass ever revisits it.
func (d *Discovery) Discover(ctx context.Context, limit int) (int, error) {
	passID := uuid.New().String()
	log := d.logger.With("pass_id", passID)

	eligible, err := d.catalog.EligibleRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch catalog: %w", err)
	}

	seen, err := d.ledger.ListKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch ledger keys: %w", err)
	}

	var fresh []model.CatalogRun
	for _, run := range eligible {
		if _, ok := seen[run.RunKey]; !ok {
			fresh = append(fresh, run)
		}
	}
	log.Info("catalog diffed", "eligible", len(eligible), "known", len(seen), "new", len(fresh))

	if limit > 0 && len(fresh) > limit {
		fresh = fresh[:limit]
		log.Info("discovery limited", "limit", limit)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	records := make([]*model.ProcessingRecord, 0, len(fresh))
	for _, run := range fresh {
		rec := &model.ProcessingRecord{
			RunKey:    run.RunKey,
			Status:    model.StatusNotProcessed,
			Available: make(map[string]bool, len(d.filesystems)),
		}
		for _, fs := range d.filesystems {
			rec.Available[fs] = false
		}

		if _, ext, found := rawdata.Resolve(d.rawRoot, run.RunKey); found {
			rec.Extension = ext
			rec.Available[d.filesystem] = true
		} else {
			// Data problem, not an infrastructure one: record the run
			// unresolved instead of aborting the whole batch.
			log.Warn("raw file not found", "run", run.RunKey.String(), "filesystem", d.filesystem)
		}
		records = append(records, rec)
	}

	if err := d.ledger.InsertRecords(ctx, records); err != nil {
		return 0, fmt.Errorf("insert discovered runs: %w", err)
	}

	log.Info("discovery finished", "inserted", len(records))
	return len(records), nil
}
