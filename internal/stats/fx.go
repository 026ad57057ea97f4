package stats

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/smallbiznis/tollgate/internal/config"
)

var Module = fx.Module("stats",
	fx.Provide(func(client *redis.Client, cfg config.Config) *Tracker {
		return NewTracker(client, cfg.CounterOpTimeout)
	}),
)
