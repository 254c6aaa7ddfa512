package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/annosync/internal/config"
)

// NewRunCommand creates the run command: the background sync loop.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the background sync loop",
		Long: `Start the background sync loop.

Each cycle uploads pending local changes, downloads remote changes, and
resolves conflicts last-write-wins. The loop runs at the configured
interval until interrupted.

Example:
  annosync run --config annosync.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(rootOpts)
		},
	}
	return cmd
}

func runLoop(opts *RootOptions) error {
	configureLogging(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	interval, err := cfg.SyncInterval()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, cleanup, err := buildCoordinator(ctx, cfg, interval)
	if err != nil {
		return err
	}
	defer cleanup()

	coord.StartSync(ctx)
	<-ctx.Done()

	slog.Info("shutting down")
	coord.StopSync()
	return nil
}
