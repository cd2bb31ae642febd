package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/invoicing/internal/config"
	invoicedomain "github.com/smallbiznis/invoicing/internal/invoice/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The SQL migrations target postgres. mysql and sqlite
			// deployments get their schema from the models directly.
			return conn.AutoMigrate(
				&invoicedomain.Invoice{},
				&invoicedomain.InvoiceLine{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
