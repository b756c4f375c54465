package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Driver      string
	DSN         string
	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// OpenBackend picks the persistence backend named by opts.Driver.
func OpenBackend(ctx context.Context, opts Options) (Backend, error) {
	switch normalizeDriver(opts.Driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return NewRedis(rdb, opts.RedisPrefix), nil
	case DriverSQLite, DriverPostgres:
		return Open(ctx, opts.Driver, opts.DSN, opts.AutoMigrate)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
}
