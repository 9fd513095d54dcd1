// Package watch implements the terminal watch command: a live view of the
// reconciled job table that redraws once a second.
package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/blockwatch/cmd/common"
	"github.com/jonesrussell/blockwatch/internal/countdown"
	internalwatch "github.com/jonesrussell/blockwatch/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// Command returns the watch command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var (
		ownerID string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow blocklist build jobs in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := common.Setup(*cfgFile, *debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if ownerID != "" {
				cfg.Watch.OwnerID = ownerID
				cfg.Watch.All = false
			}
			if all {
				cfg.Watch.All = true
				cfg.Watch.OwnerID = ""
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

			run(ctx, watcher)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return watcher.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&ownerID, "user", "", "watch one user's jobs")
	cmd.Flags().BoolVar(&all, "all", false, "watch jobs across all users")
	return cmd
}

// run redraws the table every countdown tick until the context is cancelled.
func run(ctx context.Context, watcher *internalwatch.Watcher) {
	renderer := internalwatch.NewTableRenderer(os.Stdout)
	redraw := func(d countdown.Display) {
		// Clear screen and home the cursor before each frame.
		fmt.Print("\033[2J\033[H")
		fmt.Printf("blockwatch | %s | connection: %s\n\n",
			watcher.Scope(), watcher.Conn().State().Kind)
		renderer.RenderJobs(watcher.Table().Jobs(), d)
	}

	redraw(watcher.Projector().Display())
	watcher.Projector().Run(ctx, redraw)
}
