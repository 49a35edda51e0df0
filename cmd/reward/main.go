package main

import (
	"log"
	"os"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/db"
	"smallbiznis-reward/pkg/gen"
	"smallbiznis-reward/pkg/hashistack/secretmanager"
	"smallbiznis-reward/pkg/hashistack/servicediscover"
	"smallbiznis-reward/pkg/health"
	"smallbiznis-reward/pkg/logger"
	"smallbiznis-reward/pkg/otelcol"
	"smallbiznis-reward/pkg/profiling"
	"smallbiznis-reward/pkg/redis"
	"smallbiznis-reward/pkg/sequence"
	"smallbiznis-reward/pkg/server"
	"smallbiznis-reward/services/activity"
	"smallbiznis-reward/services/catalog"
	"smallbiznis-reward/services/ledger"
	"smallbiznis-reward/services/ranking"
	"smallbiznis-reward/services/reward"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		gen.Module,
		otelcol.Module,
		health.Module,
		profiling.Module,
		fx.Provide(provideClock),
		fx.Invoke(migrate),
		catalog.Module,
		activity.Module,
		ranking.Module,
		ledger.Module,
		reward.Module,
		reward.Gateway,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		servicediscover.Module,
		fxLogger,
	}

	if os.Getenv("VAULT_ADDR") != "" {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// migrate creates the tables this service owns. Users, works and activity
// events belong to other writers and are migrated only outside production.
func migrate(cfg *config.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	models := []any{&reward.Run{}, &ledger.Entry{}}
	if cfg.AppEnv != "production" {
		models = append(models, &catalog.User{}, &catalog.Work{}, &activity.Event{})
	}

	if err := gdb.AutoMigrate(models...); err != nil {
		zap.L().Error("failed to migrate database", zap.Error(err))
		return err
	}
	return nil
}
