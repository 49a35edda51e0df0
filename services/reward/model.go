package reward

import (
	"fmt"
	"time"

	"smallbiznis-reward/pkg/errutil"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusProgress  Status = "PROGRESS"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"

	// StatusPreview marks a ranking computed without a run.
	StatusPreview Status = "PREVIEW"
)

var transitions = map[Status][]Status{
	StatusRequested: {StatusProgress, StatusFailed},
	StatusProgress:  {StatusCompleted, StatusFailed},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a run in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is one attempt at distributing rewards for a run date. A date has at
// most one attempt that is not FAILED.
type Run struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	RunDate     string         `gorm:"column:run_date;type:varchar(10);not null;uniqueIndex:idx_reward_run_date_attempt,priority:1" json:"run_date"`
	Attempt     int            `gorm:"column:attempt;not null;uniqueIndex:idx_reward_run_date_attempt,priority:2" json:"attempt"`
	Code        string         `gorm:"column:code;type:varchar(32)" json:"code"`
	Status      Status         `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Ranking     datatypes.JSON `gorm:"column:ranking" json:"ranking,omitempty"`
	ErrorMsg    string         `gorm:"column:error_msg" json:"error_msg,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Run) TableName() string { return "reward_runs" }

func invalidTransition(from, to Status) error {
	return errutil.Conflict(fmt.Sprintf("run cannot move from %s to %s", from, to), nil)
}
