package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fact-project/eventlist/internal/submitter"
)

func newUpdateFSStatusCmd() *cobra.Command {
	var flagFilesystem string

	cmd := &cobra.Command{
		Use:   "update-fs-status",
		Short: "Sync availability flags with the raw-data tree",
		Long: "update-fs-status scans the raw-data tree of one filesystem and " +
			"updates the availability flag of every recorded run: files appear when " +
			"data is copied in and disappear when a site archives to tape.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
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

			rec := submitter.NewReconciler(st, flagFilesystem, rawRoot, logger)
			n, err := rec.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Updated %d records\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFilesystem, "filesystem", "isdc", "Configured filesystem to scan")

	return cmd
}
