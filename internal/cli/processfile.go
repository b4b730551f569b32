package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fact-project/eventlist/internal/processor"
)

func newProcessFileCmd() *cobra.Command {
	var (
		flagFile     string
		flagIgnoreDB bool
		flagOut      string
	)

	cmd := &cobra.Command{
		Use:   "process-file",
		Short: "Process a single run file",
		Long: "process-file extracts the events of one raw run file (or an " +
			"interchange CSV) and commits them to the processing database. This is " +
			"what a batch job runs on a cluster node.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := flagFile
			if file == "" {
				file = os.Getenv("FILE")
			}
			if file == "" {
				return fmt.Errorf("no input file: pass --file or set FILE")
			}

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			p := processor.New(st, cfg.Reader.Command, logger)
			return p.ProcessFile(cmd.Context(), file, processor.Options{
				IgnoreMissing: flagIgnoreDB,
				OutFile:       flagOut,
			})
		},
	}

	cmd.Flags().StringVar(&flagFile, "file", "", "Run file to process (or $FILE)")
	cmd.Flags().BoolVar(&flagIgnoreDB, "ignore-db", false, "Create the processing record if discovery never saw this run")
	cmd.Flags().StringVar(&flagOut, "out-file", "", "Write events as CSV to this path instead of the database")

	return cmd
}
