// Package bootstrap builds the domain service from configuration for the service binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/config"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/memory"
	"example.com/progression/internal/persistence/postgres"
	"example.com/progression/internal/rewards"
	"example.com/progression/internal/unlock"
)

// Rules loads the reward table, timezone and random source named by cfg.
func Rules(cfg config.Config) (domain.Rules, error) {
	table, err := rewards.Load(cfg.RewardTablePath)
	if err != nil {
		return domain.Rules{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return domain.Rules{}, err
	}

	var source unlock.Source
	if cfg.UnlockSeed != 0 {
		source = unlock.NewSeededSource(cfg.UnlockSeed)
	} else if source, err = unlock.NewSource(); err != nil {
		return domain.Rules{}, fmt.Errorf("seed unlock source: %w", err)
	}
	return domain.NewRules(table, source, loc), nil
}

// Store is the opened persistence backend. Pool is nil for the memory driver.
type Store struct {
	Repo domain.Repository
	Pool *pgxpool.Pool
}

// Ping reports whether the backing database is reachable.
func (s Store) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases the pool, if any.
func (s Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStore connects the repository selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.WarnContext(ctx, "using in-memory progression store; state is lost on restart")
		return Store{Repo: memory.NewRepository()}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return Store{}, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return Store{}, fmt.Errorf("ping postgres: %w", err)
	}
	return Store{Repo: postgres.NewRepository(pool), Pool: pool}, nil
}

// Service wires rules and store into a domain.Service.
func Service(cfg config.Config, store Store, logger *slog.Logger) (*domain.Service, error) {
	rules, err := Rules(cfg)
	if err != nil {
		return nil, err
	}
	return domain.NewService(store.Repo, rules, domain.WithLogger(logger)), nil
}
