package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fact-project/eventlist/internal/server"
)

func newServeCmd() *cobra.Command {
	var flagAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Long: "serve exposes the processing database over HTTP so a long " +
			"processing campaign can be watched without opening the database.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(st, logger)
			httpServer := &http.Server{
				Addr:    flagAddr,
				Handler: srv.Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", flagAddr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", ":8080", "Listen address")

	return cmd
}
