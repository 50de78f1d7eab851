package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tripops-backend/pkg/config"
	"github.com/angelmondragon/tripops-backend/pkg/db"
	"github.com/angelmondragon/tripops-backend/pkg/db/models"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

// MaybeRunDev prepares the schema automatically when the app runs in dev mode
// with the auto-migrate flag on. Postgres goes through goose; the embedded
// sqlite driver cannot run the jsonb migrations and gets the table from
// the gorm model instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "driver": cfg.DB.Driver})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "auto-migrating documents table (sqlite)")
		if err := client.DB().WithContext(ctx).AutoMigrate(&models.Document{}); err != nil {
			return fmt.Errorf("auto-migrating documents: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running Goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}
