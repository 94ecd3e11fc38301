package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/facelocker/server/internal/config"
	"github.com/facelocker/server/internal/db"
	"github.com/facelocker/server/internal/locker/service"
	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/store/memory"
	"github.com/facelocker/server/internal/locker/store/sqlite"
)

// app is the assembled dependency graph shared by the commands.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	controller *service.AccessController

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	identities store.IdentityStore
	lockers    store.LockerStore
	events     store.AccessEventStore
}

func openStores(ctx context.Context, cfg config.Config, a *app) (stores, error) {
	if cfg.Store == "memory" {
		return stores{
			identities: memory.NewIdentityStore(),
			lockers:    memory.NewLockerStore(),
			events:     memory.NewAccessEventStore(),
		}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return stores{}, err
	}
	writer := db.NewWorker(conn)
	a.closers = append(a.closers, func() { _ = conn.Close() }, writer.Close)

	return stores{
		identities: sqlite.NewIdentityStore(conn, writer),
		lockers:    sqlite.NewLockerStore(conn, writer),
		events:     sqlite.NewAccessEventStore(conn, writer),
	}, nil
}

func newLimiter(cfg config.Config, logger *slog.Logger, a *app) (service.AttemptLimiter, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = client.Close() })
	return service.NewRedisAttemptLimiter(client, cfg.MaxFailedAttempts, cfg.AttemptWindow, logger), nil
}

// buildApp restores persisted state, provisions the configured lockers and
// wires the access controller.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := openStores(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	identities := service.NewIdentityRegistry(st.identities, cfg.VectorDimensions)
	if err := identities.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	lockers := service.NewLockerRegistry(st.lockers)
	if err := lockers.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := lockers.Provision(ctx, cfg.Lockers()...); err != nil {
		a.Close()
		return nil, err
	}

	limiter, err := newLimiter(cfg, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.controller = service.NewAccessController(identities, lockers, st.events, service.AccessPolicy{
		Tolerance: cfg.MatchTolerance,
		Limiter:   limiter,
		LogLimit:  cfg.AccessLogLimit,
	}, logger)

	logger.Info("state restored",
		"store", cfg.Store, "identities", identities.Len(), "lockers", lockers.Len())
	return a, nil
}

// openDB is used by commands that only need the database.
func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.Store != "sqlite" {
		return nil, fmt.Errorf("command requires the sqlite store, configured store is %q", cfg.Store)
	}
	return db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
}
