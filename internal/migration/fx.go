package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates before any other invoke runs against the schema.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		status, err := Migrate(conn)
		if err != nil {
			log.Error("migrations.failed",
				zap.String("dialect", status.Dialect),
				zap.Uint("version", status.Version),
				zap.Bool("dirty", status.Dirty),
				zap.Error(err),
			)
			return err
		}
		log.Info("migrations.applied", zap.String("dialect", status.Dialect), zap.Uint("version", status.Version))
		return nil
	}),
)
