package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, repo catalogdomain.Repository, log *zap.Logger) error {
		log = log.Named("migration")
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			log.Warn("schema migrations only ship for postgres; expecting schema to exist",
				zap.String("db_type", cfg.DBType),
			)
		}

		inserted, err := seed.EnsureCatalog(context.Background(), conn, node, repo)
		if err != nil {
			return err
		}
		log.Info("package catalog ensured", zap.Int("inserted", inserted))
		return nil
	}),
)
