package submitter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fact-project/eventlist/internal/config"
	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/qsub"
	"github.com/fact-project/eventlist/internal/rawdata"
	"github.com/fact-project/eventlist/pkg/model"
)

// Options configures one dispatch pass.
type Options struct {
	// Filesystem is the backend whose availability flag selects
	// records, RawRoot its raw-data mount.
	Filesystem string
	RawRoot    string

	// ConfigPath is exported to workers via EVENTLIST_CONFIG.
	ConfigPath string
	// WorkerExecutable is the program the scheduler runs per job; it
	// reads FILE and EVENTLIST_CONFIG from its environment.
	WorkerExecutable string
	// LogDirectory receives per-job stdout/stderr files.
	LogDirectory string

	Queue        string
	MailAddress  string
	MailSettings string
	// Walltime is passed through as the scheduler's own time limit;
	// this system enforces no per-job timeout itself.
	Walltime string

	// MaxPendingJobs caps jobs waiting in the queue. Submission blocks
	// on this cap, re-polling every PollInterval.
	MaxPendingJobs int
	PollInterval   time.Duration

	// ProcessLimit caps how many records one pass submits (0 = all).
	ProcessLimit int

	// OutFileMode makes workers write CSV output instead of the
	// database.
	OutFileMode bool
}

// Loop is the dispatch loop: it walks the processable ledger records
// and submits one scheduler job per run, never more than
// MaxPendingJobs deep into the queue.
//
// The loop is single threaded and cooperative: one blocking scheduler
// query, one submission, one sleep per iteration. The live scheduler
// list, not local memory, prevents duplicate submission, so a
// restarted loop is safe.
type Loop struct {
	ledger ledger.Store
	client qsub.Client
	opts   Options
	logger *slog.Logger
}

// NewLoop creates a dispatch loop.
func NewLoop(st ledger.Store, client qsub.Client, opts Options, logger *slog.Logger) *Loop {
	return &Loop{
		ledger: st,
		client: client,
		opts:   opts,
		logger: logger.With("component", "dispatch"),
	}
}

// Run blocks until every eligible record has been submitted or ctx is
// cancelled. On cancellation it cancels every outstanding eventlist
// job before returning, leaving no orphans on the scheduler.
//
// A single run's submission failure is logged and skipped; only
// ledger or scheduler unavailability aborts the pass.
func (l *Loop) Run(ctx context.Context) error {
	passID := uuid.New().String()
	log := l.logger.With("pass_id", passID)

	records, err := l.ledger.SelectProcessable(ctx, l.opts.Filesystem)
	if err != nil {
		return fmt.Errorf("select processable records: %w", err)
	}
	if l.opts.ProcessLimit > 0 && len(records) > l.opts.ProcessLimit {
		records = records[:l.opts.ProcessLimit]
	}
	log.Info("dispatch pass started", "records", len(records),
		"filesystem", l.opts.Filesystem, "max_pending", l.opts.MaxPendingJobs)

	for _, rec := range records {
		if ctx.Err() != nil {
			l.cancelOutstanding(log)
			log.Info("dispatch cancelled")
			return nil
		}

		if rec.Extension == "" {
			// Available but never resolved: reconciliation has not
			// filled in the extension yet.
			log.Warn("record has no extension, skipping", "run", rec.RunKey.String())
			continue
		}
		path := rawdata.PathFor(l.opts.RawRoot, rec.RunKey, rec.Extension)

		jobs, err := l.client.ListJobs(ctx)
		if err != nil {
			return fmt.Errorf("poll scheduler: %w", err)
		}

		// A previous pass may have submitted this run already and it
		// has not reported completion yet.
		if outstanding(jobs, rec.RunKey) {
			log.Info("run already on scheduler, skipping", "run", rec.RunKey.String())
			continue
		}

		// Enforce the queue-depth cap before submitting. The
		// scheduler has no push API, so this is a fixed-period
		// re-poll, not an event wait.
		for qsub.CountPending(jobs) >= l.opts.MaxPendingJobs {
			log.Info("queue full, waiting", "pending", qsub.CountPending(jobs),
				"max_pending", l.opts.MaxPendingJobs, "poll_interval", l.opts.PollInterval)
			if err := sleepCtx(ctx, l.opts.PollInterval); err != nil {
				l.cancelOutstanding(log)
				log.Info("dispatch cancelled")
				return nil
			}
			jobs, err = l.client.ListJobs(ctx)
			if err != nil {
				return fmt.Errorf("poll scheduler: %w", err)
			}
		}

		if err := l.submit(ctx, rec, path); err != nil {
			// One bad run never blocks the rest of the pass.
			log.Error("submission failed", "run", rec.RunKey.String(), "error", err)
		} else {
			log.Info("job submitted", "run", rec.RunKey.String(), "file", path)
		}

		// Rate-limit submission pressure independent of the capacity
		// check.
		if err := sleepCtx(ctx, l.opts.PollInterval); err != nil {
			l.cancelOutstanding(log)
			log.Info("dispatch cancelled")
			return nil
		}
	}

	log.Info("dispatch pass finished")
	return nil
}

// submit builds and executes the qsub command for one record.
func (l *Loop) submit(ctx context.Context, rec *model.ProcessingRecord, path string) error {
	base := filepath.Base(path)

	env := map[string]string{
		config.EnvConfig: l.opts.ConfigPath,
		"FILE":           path,
	}
	if l.opts.OutFileMode {
		env["OUT_FILE"] = "csv"
	}

	var resources map[string]string
	if l.opts.Walltime != "" {
		resources = map[string]string{"walltime": l.opts.Walltime}
	}

	return l.client.Submit(ctx, qsub.SubmitOptions{
		Executable:   l.opts.WorkerExecutable,
		JobName:      qsub.JobName(path),
		Stdout:       filepath.Join(l.opts.LogDirectory, fmt.Sprintf("eventlist_%s.o", base)),
		Stderr:       filepath.Join(l.opts.LogDirectory, fmt.Sprintf("eventlist_%s.e", base)),
		Queue:        l.opts.Queue,
		MailAddress:  l.opts.MailAddress,
		MailSettings: l.opts.MailSettings,
		Environment:  env,
		Resources:    resources,
	})
}

// cancelOutstanding tears down every eventlist job still on the
// scheduler. Best effort: failures are logged, never retried, and the
// loop terminates regardless. Runs on a fresh context because the
// loop's own context is already cancelled when this runs.
func (l *Loop) cancelOutstanding(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, err := l.client.ListJobs(ctx)
	if err != nil {
		log.Error("cleanup: poll scheduler", "error", err)
		return
	}

	for _, job := range jobs {
		if err := l.client.Cancel(ctx, job.Name); err != nil {
			log.Error("cleanup: cancel job", "job", job.Name, "error", err)
			continue
		}
		log.Info("cleanup: job cancelled", "job", job.Name)
	}
}

// outstanding reports whether a job for the run is on the scheduler.
func outstanding(jobs []qsub.Job, key model.RunKey) bool {
	for _, job := range jobs {
		if jobKey, ok := job.Run(); ok && jobKey == key {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
