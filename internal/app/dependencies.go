package app

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pasarloka/keranjang/internal/obs"
)

// Dependencies holds the stateful backends every module shares.
type Dependencies struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// Connect dials Postgres and Redis with tracing instrumentation attached.
// Instrumentation failures are logged and tolerated; a cart that cannot
// trace is better than one that cannot start.
func Connect(ctx context.Context, databaseURL, redisURL string, logger zerolog.Logger) (Dependencies, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return Dependencies{}, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "keranjang-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return Dependencies{}, fmt.Errorf("connect postgres: %w", err)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		pool.Close()
		return Dependencies{}, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Warn().Err(err).Msg("redis tracing instrumentation")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Warn().Err(err).Msg("redis metrics instrumentation")
	}

	return Dependencies{DB: pool, Redis: client}, nil
}

// Close releases both backends.
func (d Dependencies) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// Migrate applies pending schema migrations from sourceURL against databaseURL.
func Migrate(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
