package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/upkeep/internal/analytics"
	"github.com/smallbiznis/upkeep/internal/audit"
	"github.com/smallbiznis/upkeep/internal/auth"
	"github.com/smallbiznis/upkeep/internal/authorization"
	"github.com/smallbiznis/upkeep/internal/cache"
	"github.com/smallbiznis/upkeep/internal/client"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	"github.com/smallbiznis/upkeep/internal/maintenance"
	"github.com/smallbiznis/upkeep/internal/migration"
	"github.com/smallbiznis/upkeep/internal/observability"
	"github.com/smallbiznis/upkeep/internal/providers/pdf"
	"github.com/smallbiznis/upkeep/internal/ratelimit"
	"github.com/smallbiznis/upkeep/internal/scheduler"
	"github.com/smallbiznis/upkeep/internal/seed"
	"github.com/smallbiznis/upkeep/internal/server"
	"github.com/smallbiznis/upkeep/pkg/db"
	"go.uber.org/fx"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Functional Domains
		client.Module,
		maintenance.Module,
		analytics.Module,
		audit.Module,
		authorization.Module,
		auth.Module,
		pdf.Module,
		seed.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
