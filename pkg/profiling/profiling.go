package profiling

import (
	"context"

	"smallbiznis-reward/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(StartProfiling))

// NewConfig returns the continuous profiling setup for this process, or
// false when PYROSCOPE.ADDR is unset.
func NewConfig(c *config.Config) (pyroscope.Config, bool) {
	if c.Pyroscope.Addr == "" {
		return pyroscope.Config{}, false
	}

	return pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileBlockCount,
		},
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
			"version":      c.AppVersion,
		},
	}, true
}

func StartProfiling(lc fx.Lifecycle, c *config.Config) {
	cfg, ok := NewConfig(c)
	if !ok {
		zap.L().Info("pyroscope disabled")
		return
	}

	var profiler *pyroscope.Profiler
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p, err := pyroscope.Start(cfg)
			if err != nil {
				// profiling never blocks startup
				zap.L().Error("failed to start pyroscope", zap.Error(err))
				return nil
			}
			profiler = p
			zap.L().Info("pyroscope started", zap.String("pyroscope_addr", cfg.ServerAddress))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if profiler == nil {
				return nil
			}
			return profiler.Stop()
		},
	})
}
