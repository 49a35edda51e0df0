package catalog

import "time"

type Role string

const (
	RoleAuthor Role = "AUTHOR"
	RoleUser   Role = "USER"
)

type User struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Name          string    `gorm:"column:name" json:"name"`
	Role          Role      `gorm:"column:role;type:varchar(16);not null;default:USER" json:"role"`
	RewardBalance int64     `gorm:"column:reward_balance;not null;default:0" json:"reward_balance"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Work is a piece of published content. LikeCount and ViewCount are display
// counters maintained by the activity writer and are never used for ranking.
type Work struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Title     string    `gorm:"column:title" json:"title"`
	AuthorID  int64     `gorm:"column:author_id;index" json:"author_id,string"`
	LikeCount int64     `gorm:"column:like_count;not null;default:0" json:"like_count"`
	ViewCount int64     `gorm:"column:view_count;not null;default:0" json:"view_count"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Work) TableName() string { return "works" }
