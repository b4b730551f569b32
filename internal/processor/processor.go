// Package processor turns one raw run file into event rows. It is the
// business end of a batch job: the submitter gets a file here through
// the cluster, and the processor reads it, validates it, and commits
// the outcome to the ledger exactly once.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fact-project/eventlist/internal/eventdata"
	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/rawdata"
	"github.com/fact-project/eventlist/pkg/model"
)

// Options configures how one file is processed.
type Options struct {
	// IgnoreMissing lets the result writer create the ledger record if
	// discovery never saw this run.
	IgnoreMissing bool
	// OutFile, when set, writes the events as interchange CSV to this
	// path instead of the ledger. The record status is left untouched.
	OutFile string
}

// Processor processes single run files against the ledger.
type Processor struct {
	ledger        ledger.Store
	readerCommand string
	logger        *slog.Logger
}

// New creates a processor. readerCommand is the external decoder for
// the binary formats; it may be empty if only CSV files are processed.
func New(st ledger.Store, readerCommand string, logger *slog.Logger) *Processor {
	return &Processor{
		ledger:        st,
		readerCommand: readerCommand,
		logger:        logger.With("component", "processor"),
	}
}

// ProcessFile reads the run file at path and commits its events.
//
// A duplicate event number inside the file marks the run ERROR in the
// ledger and returns a DuplicateEventsError; nothing is written to the
// event table in that case. Runs of a type that yields no events are
// committed as processed with zero events so they are never dispatched
// again.
func (p *Processor) ProcessFile(ctx context.Context, path string, opts Options) error {
	reader, err := eventdata.ReaderFor(path, p.readerCommand)
	if err != nil {
		return err
	}

	data, err := reader.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	log := p.logger.With("run", data.Run.String())

	events := data.Events
	if !eventdata.Processable(data.RunType) {
		log.Info("run type yields no events", "run_type", int(data.RunType))
		events = nil
	}

	if err := eventdata.CheckDuplicates(data.Run, events); err != nil {
		if opts.OutFile == "" {
			if markErr := p.ledger.MarkError(ctx, data.Run); markErr != nil {
				log.Error("mark error failed", "error", markErr)
			}
		}
		return err
	}

	if opts.OutFile != "" {
		if err := writeOutFile(opts.OutFile, events); err != nil {
			return err
		}
		log.Info("events written", "file", opts.OutFile, "events", len(events))
		return nil
	}

	err = p.ledger.RecordResult(ctx, data.Run, fileExtension(path), opts.IgnoreMissing, events)
	if errors.Is(err, model.ErrAlreadyProcessed) {
		// A requeued job raced an earlier completion; the ledger
		// already holds this run's events.
		log.Warn("run already processed, nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record result for %s: %w", data.Run, err)
	}

	log.Info("run processed", "events", len(events))
	return nil
}

func writeOutFile(path string, events []model.Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := eventdata.EncodeCSV(f, events); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// fileExtension recovers the raw-file extension recorded with the
// result, also for ingest files named <run>.fits.<ext>.csv.
func fileExtension(path string) string {
	return rawdata.Extension(strings.TrimSuffix(path, ".csv"))
}
