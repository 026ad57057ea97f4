package queue

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/smallbiznis/tollgate/internal/config"
)

var Module = fx.Module("queue",
	fx.Provide(func(client *redis.Client, cfg config.Config) *Queue {
		return New(client, cfg.QueueName, cfg.CounterOpTimeout)
	}),
)
