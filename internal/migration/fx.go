package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/internal/config"
	"github.com/smallbiznis/referra/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			log.Warn("schema migrations are only automated for postgres", zap.String("db_type", cfg.DBType))
		} else {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.DefaultTenantID != 0 {
			return seed.EnsureDefaultTenantWithID(conn, snowflake.ID(cfg.DefaultTenantID))
		}
		return seed.EnsureDefaultTenant(conn)
	}),
)
