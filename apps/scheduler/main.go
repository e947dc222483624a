package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/upkeep/internal/audit"
	"github.com/smallbiznis/upkeep/internal/authorization"
	"github.com/smallbiznis/upkeep/internal/cache"
	"github.com/smallbiznis/upkeep/internal/client"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	"github.com/smallbiznis/upkeep/internal/maintenance"
	"github.com/smallbiznis/upkeep/internal/migration"
	"github.com/smallbiznis/upkeep/internal/observability"
	"github.com/smallbiznis/upkeep/internal/ratelimit"
	"github.com/smallbiznis/upkeep/internal/scheduler"
	"github.com/smallbiznis/upkeep/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Domain services required by scheduler
		client.Module,
		maintenance.Module,
		audit.Module,
		authorization.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
