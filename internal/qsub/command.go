package qsub

import (
	"fmt"
	"sort"
	"strings"
)

// SubmitOptions describes one qsub invocation.
type SubmitOptions struct {
	// Executable is the program the job runs (an absolute path; the
	// scheduler does not inherit the submitter's PATH).
	Executable string
	// JobName is passed via -N and encodes the run being processed.
	JobName string
	// Stdout and Stderr are per-job log file paths (-o / -e).
	Stdout string
	Stderr string
	// Queue selects a scheduler queue when non-empty (-q).
	Queue string
	// MailAddress and MailSettings configure job mail (-M / -m).
	// MailSettings defaults to "a" (mail on abort).
	MailAddress  string
	MailSettings string
	// Environment is exported into the job (-v k=v,...). The worker
	// receives its config path and input file this way.
	Environment map[string]string
	// Resources is the scheduler resource list (-l k=v,...), e.g.
	// a walltime limit.
	Resources map[string]string
	// Engine is "SGE" or "PBS". SGE needs -b yes to accept a binary
	// executable.
	Engine string
}

// BuildCommand creates the full qsub argv for opts. Map entries are
// emitted in sorted key order so the command is deterministic.
func BuildCommand(opts SubmitOptions) []string {
	command := []string{"qsub"}

	if opts.JobName != "" {
		command = append(command, "-N", opts.JobName)
	}
	if opts.Queue != "" {
		command = append(command, "-q", opts.Queue)
	}
	if opts.MailAddress != "" {
		command = append(command, "-M", opts.MailAddress)
	}
	mailSettings := opts.MailSettings
	if mailSettings == "" {
		mailSettings = "a"
	}
	command = append(command, "-m", mailSettings)

	// Allow a binary executable.
	if opts.Engine == "SGE" {
		command = append(command, "-b", "yes")
	}

	if opts.Stdout != "" {
		command = append(command, "-o", opts.Stdout)
	}
	if opts.Stderr != "" {
		command = append(command, "-e", opts.Stderr)
	}
	if len(opts.Environment) > 0 {
		command = append(command, "-v", joinPairs(opts.Environment))
	}
	if len(opts.Resources) > 0 {
		command = append(command, "-l", joinPairs(opts.Resources))
	}

	return append(command, opts.Executable)
}

func joinPairs(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return strings.Join(pairs, ",")
}
