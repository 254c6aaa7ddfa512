package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/annosync/internal/config"
	"github.com/roach88/annosync/internal/coordinator"
	"github.com/roach88/annosync/internal/events"
	"github.com/roach88/annosync/internal/localstore"
	remotemongo "github.com/roach88/annosync/internal/remote/mongo"
)

// configureLogging installs the process-wide slog handler.
func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// buildCoordinator wires the collaborators the configuration names:
// local store, remote client, optional event publisher. The returned
// cleanup releases them in reverse order.
func buildCoordinator(ctx context.Context, cfg *config.Config, interval time.Duration) (*coordinator.Coordinator, func(), error) {
	slog.Info("opening local store", "path", cfg.Store.Path)
	store, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open local store", err)
	}

	slog.Info("connecting to remote store", "database", cfg.Remote.Database)
	client, err := remotemongo.Connect(ctx, cfg.Remote.URI, cfg.Remote.Database,
		remotemongo.WithBatchLimit(cfg.Sync.BatchLimit))
	if err != nil {
		store.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to remote store", err)
	}

	var pub events.Publisher = events.Nop{}
	var nc *nats.Conn
	if cfg.Events.NATSURL != "" {
		slog.Info("connecting to event sink", "url", cfg.Events.NATSURL)
		nc, err = nats.Connect(cfg.Events.NATSURL)
		if err != nil {
			client.Close(ctx)
			store.Close()
			return nil, nil, WrapExitError(ExitCommandError, "failed to connect to event sink", err)
		}
		pub = events.NewNATSPublisher(nc)
	}

	coord := coordinator.New(client, coordinator.Sets(store),
		coordinator.WithInterval(interval),
		coordinator.WithPublisher(pub),
	)

	cleanup := func() {
		if nc != nil {
			nc.Close()
		}
		if err := client.Close(context.Background()); err != nil {
			slog.Warn("failed to close remote client", "err", err)
		}
		if err := store.Close(); err != nil {
			slog.Warn("failed to close local store", "err", err)
		}
	}
	return coord, cleanup, nil
}
