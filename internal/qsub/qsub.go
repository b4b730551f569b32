// Package qsub talks to an SGE or PBS batch system through its command
// line tools: qsub to submit, qstat to list, qdel to cancel. The
// scheduler offers no push notifications, so callers poll ListJobs.
package qsub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fact-project/eventlist/pkg/model"

	"github.com/fact-project/eventlist/internal/rawdata"
)

// JobPrefix marks every job this application submits. Listing filters
// on it so foreign jobs on the cluster are never touched.
const JobPrefix = "eventlist_"

// JobState is the coarse scheduler state of a job.
type JobState string

const (
	JobStatePending JobState = "pending"
	JobStateRunning JobState = "running"
)

// Job is one outstanding scheduler job, as last polled. Jobs are
// ephemeral: nothing here is persisted, the list is recomputed on
// every poll.
type Job struct {
	Name        string
	State       JobState
	SubmittedAt time.Time
	StartedAt   time.Time
}

// Run decodes the (night, runId) encoded in the job name, or false for
// jobs that do not follow the eventlist naming convention.
func (j Job) Run() (model.RunKey, bool) {
	return ParseJobName(j.Name)
}

// JobName builds the scheduler job name for a run file:
// "eventlist_" plus the file basename.
func JobName(path string) string {
	return JobPrefix + filepath.Base(path)
}

// ParseJobName decodes the run key from an eventlist job name.
func ParseJobName(name string) (model.RunKey, bool) {
	if !strings.HasPrefix(name, JobPrefix) {
		return model.RunKey{}, false
	}
	key, err := rawdata.ParseBasename(strings.TrimPrefix(name, JobPrefix))
	if err != nil {
		return model.RunKey{}, false
	}
	return key, true
}

// Client submits, lists, and cancels batch jobs.
type Client interface {
	// Submit hands one job to the scheduler.
	Submit(ctx context.Context, opts SubmitOptions) error

	// ListJobs returns the outstanding eventlist jobs (pending or
	// running) on the scheduler.
	ListJobs(ctx context.Context) ([]Job, error)

	// Cancel removes a job by name. Best effort; the job may have
	// finished between the poll and the cancel.
	Cancel(ctx context.Context, jobName string) error
}

// Runner executes a scheduler command and returns its stdout.
// It exists so tests can fake qsub/qstat/qdel.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// CLIClient implements Client by shelling out to the cluster tools.
type CLIClient struct {
	engine string // "SGE" or "PBS"
	user   string
	runner Runner
	logger *slog.Logger
}

// NewCLIClient creates a client for the given engine. The user filters
// qstat output; if empty, $USER is used.
func NewCLIClient(engine, user string, logger *slog.Logger) *CLIClient {
	return newCLIClient(engine, user, execRunner{}, logger)
}

func newCLIClient(engine, user string, runner Runner, logger *slog.Logger) *CLIClient {
	if user == "" {
		user = os.Getenv("USER")
	}
	return &CLIClient{
		engine: engine,
		user:   user,
		runner: runner,
		logger: logger.With("component", "qsub"),
	}
}

// Submit builds and executes the qsub command for opts.
func (c *CLIClient) Submit(ctx context.Context, opts SubmitOptions) error {
	opts.Engine = c.engine
	command := BuildCommand(opts)

	c.logger.Debug("submitting job", "name", opts.JobName, "command", strings.Join(command, " "))
	if _, err := c.runner.Run(ctx, command[0], command[1:]...); err != nil {
		return fmt.Errorf("submit %s: %w", opts.JobName, err)
	}
	return nil
}

// ListJobs polls qstat and returns the outstanding eventlist jobs.
func (c *CLIClient) ListJobs(ctx context.Context) ([]Job, error) {
	var (
		out []byte
		err error
	)
	switch c.engine {
	case "PBS":
		out, err = c.runner.Run(ctx, "qstat", "-x")
	default: // SGE
		out, err = c.runner.Run(ctx, "qstat", "-u", c.user, "-xml")
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []Job
	switch c.engine {
	case "PBS":
		jobs, err = parsePBSJobs(out, c.user)
	default:
		jobs, err = parseSGEJobs(out)
	}
	if err != nil {
		return nil, fmt.Errorf("parse qstat output: %w", err)
	}

	// Keep only jobs this application submitted.
	filtered := jobs[:0]
	for _, j := range jobs {
		if strings.HasPrefix(j.Name, JobPrefix) {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

// Cancel removes a job by name.
func (c *CLIClient) Cancel(ctx context.Context, jobName string) error {
	c.logger.Debug("cancelling job", "name", jobName)
	if _, err := c.runner.Run(ctx, "qdel", jobName); err != nil {
		return fmt.Errorf("cancel %s: %w", jobName, err)
	}
	return nil
}

// CountPending returns how many of the jobs are still waiting in the
// queue.
func CountPending(jobs []Job) int {
	n := 0
	for _, j := range jobs {
		if j.State == JobStatePending {
			n++
		}
	}
	return n
}
