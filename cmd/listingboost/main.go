package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/migration"
	"github.com/smallbiznis/listingboost/internal/observability"
	"github.com/smallbiznis/listingboost/internal/scheduler"
	"github.com/smallbiznis/listingboost/internal/server"
	"github.com/smallbiznis/listingboost/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,

		// Runs in-process unless APP_MODE=api or SCHEDULER_ENABLED=false.
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
