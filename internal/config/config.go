package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig is the environment variable consulted when no --config flag
// is given. Worker jobs on the cluster receive the config path this way.
const EnvConfig = "EVENTLIST_CONFIG"

// defaultFile is tried last, in the current directory.
const defaultFile = "eventlist.yaml"

// Config is the full eventlist configuration, loaded from one YAML file.
type Config struct {
	// ProcessingDatabase is the durable ledger holding per-run
	// processing records and the extracted event list.
	ProcessingDatabase ProcessingDatabase `yaml:"processing_database"`

	// FactDatabase is the read-only external run catalog.
	FactDatabase FactDatabase `yaml:"fact_database"`

	Submitter Submitter `yaml:"submitter"`

	// Reader configures the external binary-format reader.
	Reader ReaderConfig `yaml:"reader"`

	// Filesystems maps a storage backend name (e.g. "isdc") to the
	// raw-data root mounted for it. Adding a backend is a config
	// change, not a schema change.
	Filesystems map[string]string `yaml:"filesystems"`
}

// ProcessingDatabase configures the ledger store.
type ProcessingDatabase struct {
	// Path of the SQLite database file (":memory:" for tests).
	Path string `yaml:"path"`
}

// FactDatabase configures the run-catalog connection.
type FactDatabase struct {
	// DSN in go-sql-driver/mysql form, e.g.
	// "fact:secret@tcp(fact-mysql.app.tu-dortmund.de:3306)/factdata".
	DSN string `yaml:"dsn"`
}

// ReaderConfig names the external tool that decodes a FITS or zFITS
// run file into the event interchange CSV on stdout.
type ReaderConfig struct {
	Command string `yaml:"command"`
}

// Submitter configures batch-job submission.
type Submitter struct {
	// LogDirectory receives per-job stdout/stderr files.
	LogDirectory string `yaml:"log_directory"`
	// DataDirectory is the scratch area; CSV output mode writes into
	// its "output" subdirectory.
	DataDirectory string `yaml:"data_directory"`
	// Engine selects the cluster flavor: "SGE" or "PBS".
	Engine string `yaml:"engine"`
	// WorkerExecutable is the per-job program submitted to the cluster.
	WorkerExecutable string `yaml:"worker_executable"`
	// Queue, MailAddress, MailSettings and Walltime are passed through
	// to qsub when set.
	Queue        string `yaml:"queue"`
	MailAddress  string `yaml:"mail_address"`
	MailSettings string `yaml:"mail_settings"`
	Walltime     string `yaml:"walltime"`
	// MaxPendingJobs caps jobs waiting in the queue at any time.
	MaxPendingJobs int `yaml:"max_pending_jobs"`
	// PollIntervalSeconds is the qstat re-poll period while throttled
	// and the pause between consecutive submissions.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// PollInterval returns the polling period as a duration.
func (s Submitter) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// DefaultConfig returns the defaults applied before the YAML file is
// decoded over them.
func DefaultConfig() Config {
	return Config{
		Submitter: Submitter{
			Engine:              "SGE",
			WorkerExecutable:    "eventlist-worker",
			MailSettings:        "a",
			MaxPendingJobs:      20,
			PollIntervalSeconds: 60,
		},
	}
}

// Resolve determines the config file path: the explicit flag value if
// given, otherwise $EVENTLIST_CONFIG, otherwise ./eventlist.yaml.
func Resolve(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	if _, err := os.Stat(defaultFile); err == nil {
		return defaultFile, nil
	}
	return "", fmt.Errorf("no config file found: pass --config, set %s, or create ./%s", EnvConfig, defaultFile)
}

// Load reads and decodes the config file at path.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields every command depends on.
func (c Config) Validate() error {
	if c.ProcessingDatabase.Path == "" {
		return fmt.Errorf("processing_database.path is required")
	}
	if c.Submitter.MaxPendingJobs < 1 {
		return fmt.Errorf("submitter.max_pending_jobs must be at least 1")
	}
	if c.Submitter.PollIntervalSeconds < 1 {
		return fmt.Errorf("submitter.poll_interval_seconds must be at least 1")
	}
	switch c.Submitter.Engine {
	case "SGE", "PBS":
	default:
		return fmt.Errorf("submitter.engine must be SGE or PBS, got %q", c.Submitter.Engine)
	}
	return nil
}
