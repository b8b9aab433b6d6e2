package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/la2go-effects/internal/config"
	"github.com/udisondev/la2go-effects/internal/data"
	"github.com/udisondev/la2go-effects/internal/db"
	"github.com/udisondev/la2go-effects/internal/game/effect"
	"github.com/udisondev/la2go-effects/internal/game/field"
)

const ConfigPath = "config/effectserver.yaml"

var _ field.SnapshotStore = (*db.EffectRepository)(nil)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := ConfigPath
	if p := os.Getenv("EFFECTS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadEffectServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	field.EnableDebugLogging(logLevel == slog.LevelDebug)
	effect.SetFailFast(cfg.FailFast)

	slog.Info("effect server starting",
		"log_level", cfg.LogLevel,
		"fields", len(cfg.Fields),
		"tick_interval", cfg.TickInterval,
		"fail_fast", cfg.FailFast)

	catalog, err := data.LoadEffectCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading effect catalog: %w", err)
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	repo := db.NewEffectRepository(database.Pool(), catalog.Fingerprint())

	g, gctx := errgroup.WithContext(ctx)

	for _, fc := range cfg.Fields {
		f := field.New(field.Config{
			ID:                 fc.ID,
			PvP:                fc.PvP,
			ShadowWorld:        fc.ShadowWorld,
			EntranceEffects:    fc.EntranceEffects,
			ShadowWorldEffects: fc.ShadowWorldEffects,
			TickInterval:       cfg.TickInterval,
			GraceTicks:         cfg.GraceTicks,
			InboxSize:          cfg.InboxSize,
			OutboxSize:         cfg.OutboxSize,
		}, catalog, repo)

		if err := seedDevActors(ctx, f, fc.DevActors); err != nil {
			return fmt.Errorf("seeding field %d: %w", fc.ID, err)
		}

		g.Go(func() error {
			if err := f.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("field %d tick loop: %w", f.ID(), err)
			}
			return nil
		})
		g.Go(func() error {
			if err := f.RunSaveLoop(gctx, cfg.SaveInterval); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("field %d save loop: %w", f.ID(), err)
			}
			return nil
		})
		g.Go(func() error {
			drainNotifications(gctx, f)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// seedDevActors joins configured actors and queues their self-cast effects
// for the first tick.
func seedDevActors(ctx context.Context, f *field.Field, actors []config.DevActorConfig) error {
	for _, a := range actors {
		id := effect.ActorID(a.ID)
		if err := f.Join(ctx, field.NewActor(field.ActorSpec{
			ID:     id,
			Level:  a.Level,
			MaxHP:  a.MaxHP,
			Player: a.Player,
		})); err != nil {
			return fmt.Errorf("joining dev actor %d: %w", a.ID, err)
		}
		for _, ref := range a.Effects {
			if err := f.ApplyFrom(ctx, id, id, ref.ID, ref.Level); err != nil {
				return fmt.Errorf("queueing effect %d for dev actor %d: %w", ref.ID, a.ID, err)
			}
		}
	}
	if len(actors) > 0 {
		slog.Info("dev actors seeded", "field", f.ID(), "count", len(actors))
	}
	return nil
}

// drainNotifications consumes a field's outbound queue until ctx is done.
// There is no client transport here; notifications are logged at debug level.
func drainNotifications(ctx context.Context, f *field.Field) {
	for {
		select {
		case <-ctx.Done():
			if dropped := f.Dropped(); dropped > 0 {
				slog.Warn("effect notifications dropped", "field", f.ID(), "count", dropped)
			}
			return
		case n := <-f.Notifications():
			if field.IsDebugEnabled() {
				slog.Debug("effect notification",
					"field", f.ID(),
					"kind", n.Kind,
					"owner", n.OwnerID,
					"effect", n.EffectID,
					"level", n.Level,
					"stacks", n.Stacks,
					"end_tick", n.EndTick)
			}
		}
	}
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
