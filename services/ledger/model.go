package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindAuthor   Kind = "AUTHOR"
	KindConsumer Kind = "CONSUMER"
)

// Entry is one reward owed to a receiver by a run. Only Paid and PaidAt
// change after creation, and only through Distribute.
type Entry struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	RunID       int64          `gorm:"column:run_id;index:idx_ledger_run_receiver,priority:1;not null" json:"run_id,string"`
	ReceiverID  int64          `gorm:"column:receiver_id;index:idx_ledger_run_receiver,priority:2;index;not null" json:"receiver_id,string"`
	WorkID      *int64         `gorm:"column:work_id" json:"work_id,string,omitempty"`
	Kind        Kind           `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Points      int64          `gorm:"column:points;not null" json:"points"`
	Paid        bool           `gorm:"column:paid;not null;index" json:"paid"`
	PaidAt      *time.Time     `gorm:"column:paid_at" json:"paid_at,omitempty"`
	// ranked works a consumer entry was earned under
	SourceWorks datatypes.JSON `gorm:"column:source_works" json:"-"`
	DedupKey    string         `gorm:"column:dedup_key;type:varchar(64);uniqueIndex;not null" json:"-"`
	Hash        string         `gorm:"column:hash;type:varchar(64)" json:"hash"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Entry) TableName() string { return "reward_ledger_entries" }

// NewAuthorEntry owes points to the author of workID.
func NewAuthorEntry(runID, authorID, workID, points int64) *Entry {
	w := workID
	return &Entry{
		RunID:      runID,
		ReceiverID: authorID,
		WorkID:     &w,
		Kind:       KindAuthor,
		Points:     points,
		DedupKey:   fmt.Sprintf("A:%d:%d", runID, workID),
	}
}

// NewConsumerEntry owes points to a consuming user. A run holds at most one
// consumer entry per user, enforced by DedupKey.
func NewConsumerEntry(runID, userID, points int64) *Entry {
	return &Entry{
		RunID:      runID,
		ReceiverID: userID,
		Kind:       KindConsumer,
		Points:     points,
		DedupKey:   fmt.Sprintf("C:%d:%d", runID, userID),
	}
}

// WithSourceWorks records the ranked works behind a consumer entry.
func (e *Entry) WithSourceWorks(workIDs ...int64) *Entry {
	b, _ := json.Marshal(workIDs)
	e.SourceWorks = b
	return e
}

// SourceWorkIDs returns the works an entry was earned under: the work of an
// author entry, or the recorded source works of a consumer entry.
func (e *Entry) SourceWorkIDs() []int64 {
	if e.WorkID != nil {
		return []int64{*e.WorkID}
	}
	if len(e.SourceWorks) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(e.SourceWorks, &ids); err != nil {
		return nil
	}
	return ids
}

func (e *Entry) HashFields() map[string]string {
	work := ""
	if e.WorkID != nil {
		work = strconv.FormatInt(*e.WorkID, 10)
	}
	return map[string]string{
		"id":          strconv.FormatInt(e.ID, 10),
		"run_id":      strconv.FormatInt(e.RunID, 10),
		"receiver_id": strconv.FormatInt(e.ReceiverID, 10),
		"work_id":     work,
		"kind":        string(e.Kind),
		"points":      strconv.FormatInt(e.Points, 10),
	}
}

// GenerateHash fingerprints the immutable fields of the entry.
func (e *Entry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// ReceiverTotal is the unpaid sum owed to one receiver by one run.
type ReceiverTotal struct {
	ReceiverID int64 `gorm:"column:receiver_id"`
	Points     int64 `gorm:"column:points"`
	Entries    int64 `gorm:"column:entries"`
}

// Summary describes what one Distribute call paid out.
type Summary struct {
	RunID     int64 `json:"run_id,string"`
	Receivers int   `json:"receivers"`
	Entries   int   `json:"entries"`
	Points    int64 `json:"points"`
}
