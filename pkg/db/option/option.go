package option

import (
	"fmt"
	"strings"

	"smallbiznis-reward/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

// Apply runs every option against db in order.
func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	// Allow restricts SortBy to known columns. A nil map accepts any column.
	Allow map[string]bool
}

const defaultSortColumn = "id"

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" || (s.Allow != nil && !s.Allow[column]) {
			column = defaultSortColumn
		}
		return db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: column},
			Desc:   strings.EqualFold(s.OrderBy, "desc"),
		})
	}
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			switch c.Operator {
			case IN:
				db = db.Where(clause.IN{Column: clause.Column{Name: c.Field}, Values: toValues(c.Value)})
			case EQ, NEQ, GT, GTE, LT, LTE:
				db = db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
			default:
				db.AddError(fmt.Errorf("option: unsupported operator %q", c.Operator))
			}
		}
		return db
	}
}

func toValues(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []int64:
		out := make([]any, len(vs))
		for i := range vs {
			out[i] = vs[i]
		}
		return out
	case []string:
		out := make([]any, len(vs))
		for i := range vs {
			out[i] = vs[i]
		}
		return out
	default:
		return []any{v}
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Limit <= 0 {
			return db
		}
		// one extra row tells the caller whether another page exists
		return db.Limit(p.Limit + 1)
	}
}

func WithLimit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(n)
	}
}

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}
