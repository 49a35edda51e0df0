package activity

import (
	"context"
	"time"

	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/pkg/util"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Aggregator returns per-work net activity for a calendar day. An empty
// slice means no work had activity; a nil slice means no data source.
type Aggregator interface {
	AggregateWorkActivity(ctx context.Context, date time.Time) ([]WorkActivity, error)
}

// Qualifier returns the ids of users who qualify for a consumer reward on
// workID for date, ascending.
type Qualifier interface {
	QualifiedUserIDs(ctx context.Context, workID int64, date time.Time) ([]int64, error)
}

type Repository interface {
	Aggregator
	Qualifier
}

var Module = fx.Module("activity.repository",
	fx.Provide(NewRepository),
)

type repo struct {
	db  *gorm.DB
	loc *time.Location
}

type RepositoryParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewRepository(p RepositoryParams) Repository {
	return &repo{db: p.DB, loc: p.Config.Reward.Location()}
}

const (
	sumViews   = "SUM(CASE WHEN activity_type = 'VIEW' THEN 1 ELSE 0 END)"
	sumLikes   = "SUM(CASE WHEN activity_type = 'LIKE' THEN 1 ELSE 0 END)"
	sumUnlikes = "SUM(CASE WHEN activity_type = 'UNLIKE' THEN 1 ELSE 0 END)"
)

func (r *repo) day(ctx context.Context, date time.Time) *gorm.DB {
	start, end := util.DayWindow(date, r.loc)
	return r.db.WithContext(ctx).
		Model(&Event{}).
		Where("active = ?", true).
		Where("created_at >= ? AND created_at < ?", start, end)
}

func (r *repo) AggregateWorkActivity(ctx context.Context, date time.Time) ([]WorkActivity, error) {
	rows := make([]WorkActivity, 0)
	err := r.day(ctx, date).
		Select("work_id, " + sumLikes + " - " + sumUnlikes + " AS like_count, " + sumViews + " AS view_count").
		Group("work_id").
		Order("work_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to aggregate work activity", err)
	}
	return rows, nil
}

func (r *repo) tallies(ctx context.Context, workID int64, date time.Time) ([]Tally, error) {
	var rows []Tally
	err := r.day(ctx, date).
		Where("work_id = ?", workID).
		Select("user_id, " + sumViews + " AS views, " + sumLikes + " AS likes, " + sumUnlikes + " AS unlikes").
		Group("user_id").
		Order("user_id").
		Scan(&rows).Error
	return rows, err
}

func (r *repo) QualifiedUserIDs(ctx context.Context, workID int64, date time.Time) ([]int64, error) {
	rows, err := r.tallies(ctx, workID, date)
	if err != nil {
		return nil, errutil.Internal("failed to resolve qualified users", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, t := range rows {
		if t.Qualifies() {
			ids = append(ids, t.UserID)
		}
	}
	return ids, nil
}
