package reward

import (
	"context"
	"time"

	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/featureflags"
	"smallbiznis-reward/pkg/task"
	"smallbiznis-reward/pkg/util"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the distribution of the previous day once a day at
// REWARD.SCHEDULE_HOUR:SCHEDULE_MINUTE in the reward timezone.
type Scheduler struct {
	enq    task.Enqueuer
	flags  featureflags.FeatureFlag
	clock  clockwork.Clock
	loc    *time.Location
	hour   int
	minute int
}

type SchedulerParams struct {
	fx.In
	Config   *config.Config
	Enqueuer task.Enqueuer
	Flags    featureflags.FeatureFlag `optional:"true"`
	Clock    clockwork.Clock          `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		enq:    p.Enqueuer,
		flags:  p.Flags,
		clock:  clock,
		loc:    p.Config.Reward.Location(),
		hour:   p.Config.Reward.ScheduleHour,
		minute: p.Config.Reward.ScheduleMinute,
	}
}

func StartScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler) {
	if !cfg.Reward.ScheduleEnabled {
		zap.L().Info("[Scheduler] reward scheduler disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	zap.L().Info("[Scheduler] started reward scheduler")

	for {
		now := s.clock.Now().In(s.loc)
		next := nextRunTime(now, s.hour, s.minute)

		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)
		select {
		case <-s.clock.After(next.Sub(now)):
			s.RunDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// RunDaily enqueues yesterday's distribution unless the
// reward_auto_distribution flag is switched off.
func (s *Scheduler) RunDaily(ctx context.Context) {
	yesterday := util.Truncate(s.clock.Now(), s.loc).AddDate(0, 0, -1)
	date := util.FormatDate(yesterday)

	if s.flags != nil && !s.flags.Enabled(ctx, featureflags.RewardAutoDistribution, true) {
		zap.L().Warn("[Scheduler] automatic distribution switched off", zap.String("run_date", date))
		return
	}

	if err := EnqueueDistribution(ctx, s.enq, date); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue reward distribution", zap.String("run_date", date), zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] enqueued reward distribution", zap.String("run_date", date))
}

// nextRunTime returns the next occurrence of hour:minute strictly after
// now, in now's location.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
