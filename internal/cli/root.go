// Package cli implements the eventlist command line interface.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fact-project/eventlist/internal/config"
	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the eventlist CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eventlist",
		Short: "eventlist — FACT run processing and event extraction",
		Long:  "eventlist discovers new telescope runs, dispatches them to the cluster, and maintains the extracted event list.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", fmt.Sprintf("Config file (or $%s, or ./eventlist.yaml)", config.EnvConfig))
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newProcessNewFilesCmd(),
		newProcessFileCmd(),
		newUpdateFSStatusCmd(),
		newFillFromCSVCmd(),
		newServeCmd(),
	)

	return root
}

// loadConfig resolves and loads the configuration. The resolved path
// is returned too; the dispatch loop exports it to worker jobs.
func loadConfig() (config.Config, string, error) {
	path, err := config.Resolve(flagConfig)
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}

// openLedger opens the processing database and applies migrations.
func openLedger(cmd *cobra.Command, cfg config.Config) (*ledger.SQLiteStore, error) {
	st, err := ledger.Open(cfg.ProcessingDatabase.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open processing database: %w", err)
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate processing database: %w", err)
	}
	return st, nil
}

// rawRootFor looks up the raw-data mount of a configured filesystem.
func rawRootFor(cfg config.Config, filesystem string) (string, error) {
	root, ok := cfg.Filesystems[filesystem]
	if !ok {
		return "", fmt.Errorf("filesystem %q is not configured", filesystem)
	}
	return root, nil
}
