package reporter

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/smallbiznis/tollgate/internal/config"
)

var Module = fx.Module("reporter",
	fx.Provide(
		NewService,
		NewWorker,
		func(client *redis.Client, cfg config.Config) *ErrorStore {
			return NewErrorStore(client, cfg.ErrorListLimit, cfg.CounterOpTimeout)
		},
	),
	fx.Invoke(registerWorker),
)

func registerWorker(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: w.Start,
		OnStop:  w.Stop,
	})
}
