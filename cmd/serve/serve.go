// Package serve implements the serve command: the watcher plus a read-only
// status API for dashboards.
package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/blockwatch/cmd/common"
	"github.com/jonesrussell/blockwatch/internal/api"
	"github.com/jonesrussell/blockwatch/internal/logger"
	internalwatch "github.com/jonesrussell/blockwatch/internal/watch"
)

const shutdownTimeout = 30 * time.Second

// Command returns the serve command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the watcher with an HTTP status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := common.Setup(*cfgFile, *debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if addr != "" {
				cfg.Server.Address = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			watcher, err := internalwatch.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := watcher.Start(ctx); err != nil {
				return err
			}

			router := api.NewRouter(
				watcher.Table(),
				watcher.Conn(),
				watcher.Projector(),
				watcher.Registry(),
				log,
				cfg.Debug,
			)
			server := router.NewServer(cfg.Server.Address)

			serverErr := make(chan error, 1)
			go func() {
				log.Info("status API listening", logger.String("addr", cfg.Server.Address))
				serverErr <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down gracefully")
			case err := <-serverErr:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server error", logger.Error(err))
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("server shutdown error", logger.Error(err))
			}
			return watcher.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "status API listen address (overrides config)")
	return cmd
}
