package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/tollgate/internal/authorizer"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/counter"
	"github.com/smallbiznis/tollgate/internal/limits"
	"github.com/smallbiznis/tollgate/internal/observability"
	"github.com/smallbiznis/tollgate/internal/queue"
	"github.com/smallbiznis/tollgate/internal/registry"
	"github.com/smallbiznis/tollgate/internal/reporter"
	"github.com/smallbiznis/tollgate/internal/server"
	"github.com/smallbiznis/tollgate/internal/stats"
	"github.com/smallbiznis/tollgate/internal/storage"
	"github.com/smallbiznis/tollgate/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		storage.Module,
		fx.Provide(newSnowflakeNode),

		registry.Module,
		counter.Module,
		limits.Module,
		stats.Module,
		queue.Module,
		authorizer.Module,
		reporter.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
