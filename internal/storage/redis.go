// Package storage provides the shared redis client backing counters,
// the report queue and the stats bookkeeping.
package storage

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/config"
	"go.uber.org/fx"
)

// NewClient builds the redis client and verifies connectivity on startup.
func NewClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	return client
}

var Module = fx.Module("storage",
	fx.Provide(NewClient),
)
