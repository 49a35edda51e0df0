package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"smallbiznis-reward/pkg/celengine"
	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/services/activity"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var day = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

type activityMock struct {
	aggregateFn func(ctx context.Context, date time.Time) ([]activity.WorkActivity, error)
	qualifiedFn func(ctx context.Context, workID int64, date time.Time) ([]int64, error)
}

func (m *activityMock) AggregateWorkActivity(ctx context.Context, date time.Time) ([]activity.WorkActivity, error) {
	return m.aggregateFn(ctx, date)
}

func (m *activityMock) QualifiedUserIDs(ctx context.Context, workID int64, date time.Time) ([]int64, error) {
	if m.qualifiedFn != nil {
		return m.qualifiedFn(ctx, workID, date)
	}
	return nil, nil
}

func newService(t *testing.T, rows []activity.WorkActivity, err error) *Service {
	t.Helper()
	svc, nerr := NewService(ServiceParams{
		Config: &config.Config{},
		Activity: &activityMock{aggregateFn: func(context.Context, time.Time) ([]activity.WorkActivity, error) {
			return rows, err
		}},
	})
	require.NoError(t, nerr)
	return svc
}

func TestRankScoresAndOrders(t *testing.T) {
	svc := newService(t, []activity.WorkActivity{
		{WorkID: 2, LikeCount: 10, ViewCount: 50},
		{WorkID: 1, LikeCount: 5, ViewCount: 100},
	}, nil)

	ranked, err := svc.Rank(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, []RankedWork{
		{Rank: 1, WorkID: 1, LikeCount: 5, ViewCount: 100, Score: 110},
		{Rank: 2, WorkID: 2, LikeCount: 10, ViewCount: 50, Score: 70},
	}, ranked)
}

func TestRankTieBreaksOnWorkID(t *testing.T) {
	svc := newService(t, []activity.WorkActivity{
		{WorkID: 30, LikeCount: 1, ViewCount: 0},
		{WorkID: 10, LikeCount: 0, ViewCount: 2},
		{WorkID: 20, LikeCount: 1, ViewCount: 0},
	}, nil)

	ranked, err := svc.Rank(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	require.Equal(t, []int64{10, 20, 30}, []int64{ranked[0].WorkID, ranked[1].WorkID, ranked[2].WorkID})
	for _, r := range ranked {
		require.Equal(t, int64(2), r.Score)
	}
}

func TestRankKeepsTopTen(t *testing.T) {
	rows := make([]activity.WorkActivity, 0, 15)
	for i := int64(1); i <= 15; i++ {
		rows = append(rows, activity.WorkActivity{WorkID: i, ViewCount: i})
	}
	svc := newService(t, rows, nil)

	ranked, err := svc.Rank(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, ranked, DefaultTopN)
	require.Equal(t, int64(15), ranked[0].WorkID)
	require.Equal(t, 1, ranked[0].Rank)
	require.Equal(t, int64(6), ranked[9].WorkID)
	require.Equal(t, 10, ranked[9].Rank)
}

func TestRankEmptyAndMissingData(t *testing.T) {
	ranked, err := newService(t, []activity.WorkActivity{}, nil).Rank(context.Background(), day)
	require.NoError(t, err)
	require.Empty(t, ranked)

	_, err = newService(t, nil, nil).Rank(context.Background(), day)
	require.True(t, errutil.Is(err, errutil.StatusInternal))
	require.Contains(t, err.Error(), "no activity data")

	boom := errors.New("boom")
	_, err = newService(t, nil, boom).Rank(context.Background(), day)
	require.ErrorIs(t, err, boom)
}

func TestOrderWithCustomExpression(t *testing.T) {
	scorer, err := celengine.NewScorer("view_count")
	require.NoError(t, err)

	ranked, err := Order([]activity.WorkActivity{
		{WorkID: 1, LikeCount: 100, ViewCount: 1},
		{WorkID: 2, LikeCount: 0, ViewCount: 5},
	}, scorer, 1)
	require.NoError(t, err)
	require.Equal(t, []RankedWork{{Rank: 1, WorkID: 2, ViewCount: 5, Score: 5}}, ranked)
}

func TestNewServiceRejectsBadExpression(t *testing.T) {
	cfg := &config.Config{}
	cfg.Reward.ScoreExpression = "like_count >"
	_, err := NewService(ServiceParams{Config: cfg, Activity: &activityMock{}})
	require.Error(t, err)
}

func TestNewServiceClampsTopNToPaidRanks(t *testing.T) {
	rows := make([]activity.WorkActivity, 0, 12)
	for i := int64(1); i <= 12; i++ {
		rows = append(rows, activity.WorkActivity{WorkID: i, LikeCount: i})
	}

	cfg := &config.Config{}
	cfg.Reward.TopN = 12
	svc, err := NewService(ServiceParams{
		Config: cfg,
		Activity: &activityMock{aggregateFn: func(context.Context, time.Time) ([]activity.WorkActivity, error) {
			return rows, nil
		}},
	})
	require.NoError(t, err)
	require.Equal(t, DefaultTopN, svc.topN)

	ranked, err := svc.Rank(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, ranked, DefaultTopN)
	require.Equal(t, int64(3), ranked[9].WorkID)

	cfg.Reward.TopN = 3
	svc, err = NewService(ServiceParams{Config: cfg, Activity: &activityMock{}})
	require.NoError(t, err)
	require.Equal(t, 3, svc.topN)
}

func TestCacheKeyFollowsScoreExpression(t *testing.T) {
	cfg := &config.Config{}
	base, err := NewService(ServiceParams{Config: cfg, Activity: &activityMock{}})
	require.NoError(t, err)

	cfg.Reward.ScoreExpression = "like_count * 2 + view_count"
	same, err := NewService(ServiceParams{Config: cfg, Activity: &activityMock{}})
	require.NoError(t, err)
	require.Equal(t, base.cacheKey("2026-01-15"), same.cacheKey("2026-01-15"))

	cfg.Reward.ScoreExpression = "like_count * 3 + view_count"
	changed, err := NewService(ServiceParams{Config: cfg, Activity: &activityMock{}})
	require.NoError(t, err)
	require.NotEqual(t, base.cacheKey("2026-01-15"), changed.cacheKey("2026-01-15"))
	require.NotEqual(t, base.cacheKey("2026-01-15"), base.cacheKey("2026-01-16"))
}
