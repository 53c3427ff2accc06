package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/migration"
	"github.com/smallbiznis/listingboost/internal/observability"
	"github.com/smallbiznis/listingboost/internal/server"
	"github.com/smallbiznis/listingboost/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Mode = config.ModeAPI
			return cfg
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// No scheduler: expiry sweeps run in apps/scheduler.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
