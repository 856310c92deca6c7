package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/internal/audit"
	"github.com/smallbiznis/referra/internal/clock"
	"github.com/smallbiznis/referra/internal/commission"
	"github.com/smallbiznis/referra/internal/config"
	"github.com/smallbiznis/referra/internal/events"
	"github.com/smallbiznis/referra/internal/logger"
	"github.com/smallbiznis/referra/internal/migration"
	"github.com/smallbiznis/referra/internal/observability"
	"github.com/smallbiznis/referra/internal/partner"
	"github.com/smallbiznis/referra/internal/ratelimit"
	"github.com/smallbiznis/referra/internal/server"
	"github.com/smallbiznis/referra/internal/tenant"
	"github.com/smallbiznis/referra/internal/tier"
	"github.com/smallbiznis/referra/internal/upline"
	"github.com/smallbiznis/referra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Functional domains
		tenant.Module,
		tier.Module,
		partner.Module,
		upline.Module,
		events.Module,
		audit.Module,
		commission.Module,

		server.Module,
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
