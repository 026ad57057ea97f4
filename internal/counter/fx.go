package counter

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/smallbiznis/tollgate/internal/config"
)

var Module = fx.Module("counter",
	fx.Provide(func(client *redis.Client, cfg config.Config) *Store {
		return NewStore(client, cfg.CounterOpTimeout)
	}),
)
