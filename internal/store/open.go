package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Options selects and locates a backend.
type Options struct {
	Backend     string
	BadgerPath  string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string
}

// Open connects to the configured backend, creating its schema if needed.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)

	switch opts.Backend {
	case BackendBadger, "":
		var b *BadgerStore
		b, err = NewBadgerStore(opts.BadgerPath, logger)
		s = b
	case BackendRedis:
		var r *RedisStore
		r, err = NewRedisStore(ctx, opts.RedisURL)
		s = r
	case BackendPostgres:
		logger.Info().Msg("running database migrations...")
		if err := RunMigrations(ctx, opts.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		var p *PostgresStore
		p, err = NewPostgresStore(ctx, opts.DatabaseURL)
		s = p
	case BackendSQLite:
		var l *SQLiteStore
		l, err = NewSQLiteStore(ctx, opts.SQLitePath)
		s = l
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}

	if err != nil {
		return nil, fmt.Errorf("%s connection failed: %w", opts.Backend, err)
	}
	return s, nil
}
