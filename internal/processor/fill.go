package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fact-project/eventlist/pkg/model"
)

// FillFromCSV ingests every *.csv file in dir into the ledger and
// returns how many files were committed.
//
// Each file is one run's worth of events, produced by an earlier
// out-file pass. Committed files are deleted; a file with duplicate
// event numbers marks its run ERROR and is renamed to <name>.dup so
// the evidence survives for inspection. Other failures leave the file
// in place for a retry.
func (p *Processor) FillFromCSV(ctx context.Context, dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(matches)
	p.logger.Info("csv ingest started", "dir", dir, "files", len(matches))

	done := 0
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		err := p.ProcessFile(ctx, path, Options{IgnoreMissing: true})

		var dupErr *model.DuplicateEventsError
		switch {
		case errors.As(err, &dupErr):
			p.logger.Error("duplicate events in file", "file", path, "event_nr", dupErr.EventNr)
			if renameErr := os.Rename(path, path+".dup"); renameErr != nil {
				p.logger.Error("rename failed", "file", path, "error", renameErr)
			}
		case err != nil:
			p.logger.Error("ingest failed", "file", path, "error", err)
		default:
			if rmErr := os.Remove(path); rmErr != nil {
				p.logger.Error("remove failed", "file", path, "error", rmErr)
			}
			done++
		}
	}

	p.logger.Info("csv ingest finished", "committed", done, "total", len(matches))
	return done, nil
}
