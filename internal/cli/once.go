package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/annosync/internal/config"
	"github.com/roach88/annosync/internal/remote"
)

// NewOnceCommand creates the once command: a single manual sync cycle.
func NewOnceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		Long: `Run a single sync cycle and exit.

Checks remote availability first; an unavailable remote exits without
attempting any sync. Exits non-zero if the cycle fails.

Example:
  annosync once --config annosync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(rootOpts, cmd)
		},
	}
	return cmd
}

func runOnce(opts *RootOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	interval, err := cfg.SyncInterval()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	coord, cleanup, err := buildCoordinator(ctx, cfg, interval)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := coord.SyncNow(ctx); err != nil {
		if remote.IsTransient(err) {
			return WrapExitError(ExitSyncFailure, "sync cycle failed (will succeed on retry once the remote recovers)", err)
		}
		return WrapExitError(ExitSyncFailure, "sync cycle failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sync completed at %s\n",
		coord.LastSyncTime().Format("2006-01-02 15:04:05 MST"))
	return nil
}
