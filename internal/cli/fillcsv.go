package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fact-project/eventlist/internal/processor"
)

func newFillFromCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill-from-csv [dir]",
		Short: "Ingest CSV output files into the processing database",
		Long: "fill-from-csv commits the per-run CSV files an out-file campaign " +
			"produced. Committed files are deleted; files with duplicate event " +
			"numbers mark their run as failed and are kept with a .dup suffix. " +
			"The directory defaults to <data_directory>/output.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			dir := filepath.Join(cfg.Submitter.DataDirectory, "output")
			if len(args) == 1 {
				dir = args[0]
			}

			st, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			p := processor.New(st, cfg.Reader.Command, logger)
			n, err := p.FillFromCSV(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Printf("Committed %d files\n", n)
			return nil
		},
	}

	return cmd
}
