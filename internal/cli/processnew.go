package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fact-project/eventlist/internal/factdb"
	"github.com/fact-project/eventlist/internal/qsub"
	"github.com/fact-project/eventlist/internal/submitter"
)

func newProcessNewFilesCmd() *cobra.Command {
	var (
		flagFilesystem     string
		flagDiscoverOnly   bool
		flagDiscoveryLimit int
		flagProcessLimit   int
		flagOutFile        bool
	)

	cmd := &cobra.Command{
		Use:   "process-new-files",
		Short: "Discover new runs and dispatch them to the cluster",
		Long: "process-new-files diffs the FACT run catalog against the processing " +
			"database, records runs it has never seen, and submits one batch job per " +
			"unprocessed run whose file is available on the selected filesystem.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			rawRoot, err := rawRootFor(cfg, flagFilesystem)
			if err != nil {
				return err
			}

			st, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			catalog, err := factdb.Open(cfg.FactDatabase.DSN, logger)
			if err != nil {
				return err
			}
			defer catalog.Close()

			filesystems := make([]string, 0, len(cfg.Filesystems))
			for name := range cfg.Filesystems {
				filesystems = append(filesystems, name)
			}

			discovery := submitter.NewDiscovery(st, catalog, flagFilesystem, rawRoot, filesystems, logger)
			n, err := discovery.Discover(cmd.Context(), flagDiscoveryLimit)
			if err != nil {
				return err
			}
			fmt.Printf("Discovered %d new runs\n", n)
			if flagDiscoverOnly {
				return nil
			}

			client := qsub.NewCLIClient(cfg.Submitter.Engine, "", logger)
			loop := submitter.NewLoop(st, client, submitter.Options{
				Filesystem:       flagFilesystem,
				RawRoot:          rawRoot,
				ConfigPath:       cfgPath,
				WorkerExecutable: cfg.Submitter.WorkerExecutable,
				LogDirectory:     cfg.Submitter.LogDirectory,
				Queue:            cfg.Submitter.Queue,
				MailAddress:      cfg.Submitter.MailAddress,
				MailSettings:     cfg.Submitter.MailSettings,
				Walltime:         cfg.Submitter.Walltime,
				MaxPendingJobs:   cfg.Submitter.MaxPendingJobs,
				PollInterval:     cfg.Submitter.PollInterval(),
				ProcessLimit:     flagProcessLimit,
				OutFileMode:      flagOutFile,
			}, logger)

			return loop.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flagFilesystem, "filesystem", "isdc", "Configured filesystem to probe and dispatch from")
	cmd.Flags().BoolVar(&flagDiscoverOnly, "discover-only", false, "Record new runs without submitting jobs")
	cmd.Flags().IntVar(&flagDiscoveryLimit, "discovery-limit", 0, "Record at most this many new runs (0 = all)")
	cmd.Flags().IntVar(&flagProcessLimit, "process-limit", 0, "Submit at most this many jobs (0 = all)")
	cmd.Flags().BoolVar(&flagOutFile, "out-file", false, "Workers write CSV output instead of the database")

	return cmd
}
