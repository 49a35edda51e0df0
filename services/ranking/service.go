package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-reward/pkg/celengine"
	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/pkg/rediskey"
	"smallbiznis-reward/pkg/util"
	"smallbiznis-reward/services/activity"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var Module = fx.Module("ranking.service",
	fx.Provide(NewService),
)

type Service struct {
	activity activity.Aggregator
	scorer   *celengine.Scorer
	exprHash string
	topN     int
	loc      *time.Location

	// optional cache of finished days
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

type ServiceParams struct {
	fx.In
	Config   *config.Config
	Activity activity.Repository
	Redis    *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	cfg := p.Config.Reward

	expr := cfg.ScoreExpression
	if expr == "" {
		expr = "like_count * 2 + view_count"
	}
	scorer, err := celengine.NewScorer(expr)
	if err != nil {
		return nil, err
	}

	topN := cfg.TopN
	switch {
	case topN <= 0:
		topN = DefaultTopN
	case topN > DefaultTopN:
		zap.L().Warn("REWARD.TOP_N above the paid ranks, clamping",
			zap.Int("top_n", topN),
			zap.Int("max", DefaultTopN),
		)
		topN = DefaultTopN
	}

	return &Service{
		activity: p.Activity,
		scorer:   scorer,
		exprHash: rediskey.HashExpression(expr),
		topN:     topN,
		loc:      cfg.Location(),
		rdb:      p.Redis,
		ttl:      cfg.RankingCacheTTL,
	}, nil
}

// Rank returns the top works for date. Scores are computed from the
// activity ledger of that day only, never from the cached counters on a
// work.
func (s *Service) Rank(ctx context.Context, date time.Time) ([]RankedWork, error) {
	day := util.FormatDate(util.Truncate(date, s.loc))

	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("run_date", day),
	)

	if cached, ok := s.fromCache(ctx, day); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(day, func() (any, error) {
		rows, err := s.activity.AggregateWorkActivity(ctx, date)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			return nil, errutil.Internal("no activity data", nil)
		}

		ranked, err := Order(rows, s.scorer, s.topN)
		if err != nil {
			return nil, errutil.Internal("failed to score works", err)
		}

		s.toCache(ctx, day, ranked)
		return ranked, nil
	})
	if err != nil {
		zapLog.Error("failed to rank works", zap.Error(err))
		return nil, err
	}

	ranked := v.([]RankedWork)
	zapLog.Debug("ranked works", zap.Int("count", len(ranked)))

	// callers may mutate the slice; singleflight shares it
	return append([]RankedWork(nil), ranked...), nil
}

// cacheKey varies with the score expression so a changed expression never
// serves a ranking computed under the old one.
func (s *Service) cacheKey(day string) string {
	return rediskey.BuildRankingKey(day, s.topN, s.exprHash)
}

func (s *Service) fromCache(ctx context.Context, day string) ([]RankedWork, bool) {
	if s.rdb == nil || s.ttl <= 0 {
		return nil, false
	}

	b, err := s.rdb.Get(ctx, s.cacheKey(day)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("ranking cache read failed", zap.String("run_date", day), zap.Error(err))
		}
		return nil, false
	}

	var ranked []RankedWork
	if err := json.Unmarshal(b, &ranked); err != nil {
		return nil, false
	}
	return ranked, true
}

func (s *Service) toCache(ctx context.Context, day string, ranked []RankedWork) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}

	b, err := json.Marshal(ranked)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, s.cacheKey(day), b, s.ttl).Err(); err != nil {
		zap.L().Warn("ranking cache write failed", zap.String("run_date", day), zap.Error(err))
	}
}
