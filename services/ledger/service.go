package ledger

import (
	"context"
	"errors"
	"fmt"

	"smallbiznis-reward/pkg/db/option"
	"smallbiznis-reward/pkg/db/pagination"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/pkg/repository"
	"smallbiznis-reward/services/catalog"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var errConcurrentPayout = errors.New("unpaid entries changed during payout")

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clockwork.Clock

	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clockwork.Clock `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: clock,

		entries: repository.ProvideStore[Entry](p.DB),
	}
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// Record stores unpaid entries inside tx, assigning ids and hashes. The
// caller owns the transaction so entries commit together with the run that
// produced them.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, entries []*Entry) error {
	for _, e := range entries {
		if e.Points < 0 {
			return errutil.Internal(fmt.Sprintf("negative points for receiver %d", e.ReceiverID), nil)
		}
		e.ID = s.node.Generate().Int64()
		e.Paid = false
		e.PaidAt = nil
		e.Hash = e.GenerateHash()
	}

	if err := s.entries.WithTrx(tx).BatchCreate(ctx, entries); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errutil.Conflict("reward entries already recorded for this run", err)
		}
		return errutil.Internal("failed to record reward entries", err)
	}
	return nil
}

// CountByRun returns how many entries, paid or not, a run produced.
func (s *Service) CountByRun(ctx context.Context, runID int64) (int64, error) {
	n, err := s.entries.Count(ctx, &Entry{RunID: runID})
	if err != nil {
		return 0, errutil.Internal("failed to count reward entries", err)
	}
	return n, nil
}

// CountUnpaid returns how many entries of a run are still owed.
func (s *Service) CountUnpaid(ctx context.Context, runID int64) (int64, error) {
	n, err := s.entries.Count(ctx, &Entry{RunID: runID}, option.ApplyOperator(option.Condition{
		Field:    "paid",
		Operator: option.EQ,
		Value:    false,
	}))
	if err != nil {
		return 0, errutil.Internal("failed to count unpaid rewards", err)
	}
	return n, nil
}

// UnpaidTotals sums the unpaid entries of a run per receiver, ascending by
// receiver id.
func (s *Service) UnpaidTotals(ctx context.Context, runID int64) ([]ReceiverTotal, error) {
	var rows []ReceiverTotal
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Select("receiver_id, SUM(points) AS points, COUNT(*) AS entries").
		Where("run_id = ? AND paid = ?", runID, false).
		Group("receiver_id").
		Order("receiver_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to list unpaid rewards", err)
	}
	return rows, nil
}

// Distribute pays every unpaid entry of a run. Each receiver is paid in its
// own transaction: the unpaid rows are locked, marked paid and their sum is
// added to the receiver balance. Calling it again only pays what is still
// unpaid, so a run interrupted halfway can be resumed.
func (s *Service) Distribute(ctx context.Context, runID int64) (*Summary, error) {
	zapLog := logger(ctx).With(zap.Int64("run_id", runID))

	totals, err := s.UnpaidTotals(ctx, runID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: runID}
	for _, t := range totals {
		paid, points, err := s.payReceiver(ctx, runID, t.ReceiverID)
		if err != nil {
			zapLog.Error("failed to pay receiver", zap.Int64("receiver_id", t.ReceiverID), zap.Error(err))
			return summary, err
		}
		if paid == 0 {
			continue
		}

		summary.Receivers++
		summary.Entries += paid
		summary.Points += points
		pointsDistributed.Add(float64(points))
	}

	zapLog.Info("reward distribution finished",
		zap.Int("receivers", summary.Receivers),
		zap.Int("entries", summary.Entries),
		zap.Int64("points", summary.Points),
	)

	return summary, nil
}

func (s *Service) payReceiver(ctx context.Context, runID, receiverID int64) (int, int64, error) {
	var paid int
	var points int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.entries.WithTrx(tx).Find(ctx, &Entry{RunID: runID, ReceiverID: receiverID},
			option.ApplyOperator(option.Condition{
				Field:    "paid",
				Operator: option.EQ,
				Value:    false,
			}),
			option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc"}),
			option.WithLockingUpdate(),
		)
		if err != nil {
			return errutil.Internal("failed to lock unpaid rewards", err)
		}
		if len(rows) == 0 {
			// paid by a concurrent call
			return nil
		}

		ids := make([]int64, 0, len(rows))
		var sum int64
		for _, e := range rows {
			ids = append(ids, e.ID)
			sum += e.Points
		}

		now := s.clock.Now().UTC()
		res := tx.Model(&Entry{}).
			Where("id IN ? AND paid = ?", ids, false).
			Updates(map[string]any{"paid": true, "paid_at": now})
		if res.Error != nil {
			return errutil.Internal("failed to mark rewards paid", res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return errutil.Conflict("reward payout raced with another distribution", errConcurrentPayout)
		}

		res = tx.Model(&catalog.User{}).
			Where("id = ?", receiverID).
			Update("reward_balance", gorm.Expr("reward_balance + ?", sum))
		if res.Error != nil {
			return errutil.Internal("failed to credit reward balance", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound(fmt.Sprintf("user %d not found", receiverID), nil)
		}

		paid = len(ids)
		points = sum
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return paid, points, nil
}

// ListByReceiver pages through a receiver's entries, newest first.
func (s *Service) ListByReceiver(ctx context.Context, receiverID int64, page pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	page = page.Normalize()

	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err, errutil.WithDetail("cursor", "malformed cursor"))
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "desc"}),
		option.ApplyPagination(page),
	}
	if cursor != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: option.LT,
			Value:    cursor.ID,
		}))
	}

	rows, err := s.entries.Find(ctx, &Entry{ReceiverID: receiverID}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list reward entries", err)
	}

	return pagination.Page(rows, page.Limit, func(e *Entry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID}
	})
}
