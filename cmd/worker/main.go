package main

import (
	"log"
	"os"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/db"
	"smallbiznis-reward/pkg/featureflags"
	"smallbiznis-reward/pkg/gen"
	"smallbiznis-reward/pkg/hashistack/secretmanager"
	"smallbiznis-reward/pkg/logger"
	"smallbiznis-reward/pkg/otelcol"
	"smallbiznis-reward/pkg/profiling"
	"smallbiznis-reward/pkg/redis"
	"smallbiznis-reward/pkg/sequence"
	"smallbiznis-reward/pkg/task"
	"smallbiznis-reward/services/activity"
	"smallbiznis-reward/services/catalog"
	"smallbiznis-reward/services/ledger"
	"smallbiznis-reward/services/ranking"
	"smallbiznis-reward/services/reward"
)

// The worker runs queued distributions and the daily scheduler. Schema
// migration is left to the API process.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		gen.Module,
		otelcol.Module,
		profiling.Module,
		featureflags.Module,
		fx.Provide(provideClock),
		fx.Invoke(func(trace.TracerProvider) {}),
		task.Client,
		task.Server,
		catalog.Module,
		activity.Module,
		ranking.Module,
		ledger.Module,
		reward.Module,
		reward.TaskModule,
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
