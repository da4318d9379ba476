package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"starmf-gateway/internal/server"
)

// addServeCommand adds the long-running gateway process command.
func addServeCommand(rootCmd *cobra.Command, newApp func() (*App, error)) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: HTTP callbacks plus reconciliation jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.Scheduler.Start(ctx)
			defer app.Scheduler.Stop()

			srv := server.New(app.Config.Server.Addr, app.Payments, app.Logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Run()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			app.Logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	rootCmd.AddCommand(cmd)
}
