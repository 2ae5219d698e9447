package bootstrap

import (
	"context"

	"edgegate/services/apikey"
	"edgegate/services/domain"
	"edgegate/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("bootstrap", fx.Invoke(migrate))

func migrate(lc fx.Lifecycle, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.WithContext(ctx).AutoMigrate(
				&tenant.Account{},
				&domain.Domain{},
				&apikey.APIKey{},
			); err != nil {
				return err
			}
			zap.L().Info("database schema ready")
			return nil
		},
	})
}
