package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	entitlementrepo "github.com/smallbiznis/listingboost/internal/entitlement/repository"
	listingrepo "github.com/smallbiznis/listingboost/internal/listing/repository"
	"github.com/smallbiznis/listingboost/internal/observability"
	"github.com/smallbiznis/listingboost/internal/ratelimit"
	"github.com/smallbiznis/listingboost/internal/scheduler"
	"github.com/smallbiznis/listingboost/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Mode = config.ModeScheduler
			return cfg
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Repositories swept by the jobs; redis backs the per-job leader lock.
		fx.Provide(listingrepo.Provide),
		fx.Provide(entitlementrepo.Provide),
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
