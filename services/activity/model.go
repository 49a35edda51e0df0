package activity

import (
	"time"

	"gorm.io/gorm"
)

type Type string

const (
	TypeView   Type = "VIEW"
	TypeLike   Type = "LIKE"
	TypeUnlike Type = "UNLIKE"
)

// Event is one recorded interaction of a user with a work. Events are
// written by the activity recorder; this service only reads them.
type Event struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	UserID       int64     `gorm:"column:user_id;index:idx_activity_work_day,priority:3"`
	WorkID       int64     `gorm:"column:work_id;index:idx_activity_work_day,priority:1"`
	ActivityType Type      `gorm:"column:activity_type;type:varchar(16);not null"`
	Active       bool      `gorm:"column:active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;index:idx_activity_work_day,priority:2"`
}

func (Event) TableName() string { return "activity_events" }

// BeforeCreate normalises timestamps to UTC so day windows compare correctly
// on drivers that store time as text.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

// WorkActivity is the net activity of one work over one day.
type WorkActivity struct {
	WorkID    int64 `gorm:"column:work_id"`
	LikeCount int64 `gorm:"column:like_count"`
	ViewCount int64 `gorm:"column:view_count"`
}

// Tally counts one user's events on one work over one day.
type Tally struct {
	UserID  int64 `gorm:"column:user_id"`
	Views   int64 `gorm:"column:views"`
	Likes   int64 `gorm:"column:likes"`
	Unlikes int64 `gorm:"column:unlikes"`
}

// NetLikes is likes minus unlikes within the day.
func (t Tally) NetLikes() int64 {
	return t.Likes - t.Unlikes
}

// Qualifies reports whether the user contributed to the work's ranking that
// day: any view, or a like that was not withdrawn the same day.
func (t Tally) Qualifies() bool {
	return t.Views > 0 || t.NetLikes() > 0
}
