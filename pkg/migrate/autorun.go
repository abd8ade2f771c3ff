package migrate

import (
	"context"
	"fmt"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

// MaybeRunDev applies the embedded migrations at boot. It only does anything
// in dev with YCSYH_AUTO_MIGRATE set; other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	m, err := New(sqlDB, EmbeddedDir, logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrate.autorun.complete")
	return nil
}
