package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smallbiznis-reward/pkg/config"
	"smallbiznis-reward/pkg/db/option"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/pkg/repository"
	"smallbiznis-reward/pkg/sequence"
	"smallbiznis-reward/pkg/util"
	"smallbiznis-reward/services/activity"
	"smallbiznis-reward/services/catalog"
	"smallbiznis-reward/services/ledger"
	"smallbiznis-reward/services/ranking"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	health "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ranker produces the daily ranking a run pays out.
type Ranker interface {
	Rank(ctx context.Context, date time.Time) ([]ranking.RankedWork, error)
}

type Service struct {
	health.UnimplementedHealthServer

	db    *gorm.DB
	node  *snowflake.Node
	clock clockwork.Clock
	loc   *time.Location

	runs      repository.Repository[Run]
	ranker    Ranker
	allocator *Allocator
	ledger    *ledger.Service
	catalog   catalog.Repository
	sequence  sequence.Generator
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Ranker   Ranker
	Catalog  catalog.Repository
	Activity activity.Repository
	Ledger   *ledger.Service
	Clock    clockwork.Clock    `optional:"true"`
	Sequence sequence.Generator `optional:"true"`
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
		loc:   p.Config.Reward.Location(),

		runs:      repository.ProvideStore[Run](p.DB),
		ranker:    p.Ranker,
		allocator: NewAllocator(p.Catalog, p.Activity, p.Config.Reward.QualifyConcurrency),
		ledger:    p.Ledger,
		catalog:   p.Catalog,
		sequence:  p.Sequence,
	}
}

// Result is returned by ranking and distribution requests.
type Result struct {
	RunDate     string               `json:"run_date"`
	Status      Status               `json:"status"`
	RunID       int64                `json:"run_id,string,omitempty"`
	Code        string               `json:"code,omitempty"`
	Attempt     int                  `json:"attempt,omitempty"`
	RankedWorks []ranking.RankedWork `json:"ranked_works"`
	Summary     *ledger.Summary      `json:"summary,omitempty"`
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// Today is the current calendar day in the reward timezone.
func (s *Service) Today() time.Time {
	return util.Truncate(s.clock.Now(), s.loc)
}

// parsePastDate accepts only days strictly before today. Today and future
// days still collect activity and cannot be ranked.
func (s *Service) parsePastDate(date string) (time.Time, error) {
	d, err := util.ParseDate(date, s.loc)
	if err != nil {
		return time.Time{}, errutil.ValidationFailed("invalid reward date", err, errutil.WithDetail("date", err.Error()))
	}
	if !d.Before(s.Today()) {
		return time.Time{}, errutil.ValidationFailed("reward date must be before today", nil,
			errutil.WithDetail("date", fmt.Sprintf("%s is not before %s", date, util.FormatDate(s.Today()))))
	}
	return d, nil
}

// ComputeRanking previews the ranking of a past date without persisting
// anything. Status is the latest run's status for that date, or PREVIEW.
func (s *Service) ComputeRanking(ctx context.Context, date string) (*Result, error) {
	d, err := s.parsePastDate(date)
	if err != nil {
		return nil, err
	}

	ranked, err := s.ranker.Rank(ctx, d)
	if err != nil {
		return nil, err
	}

	res := &Result{RunDate: util.FormatDate(d), Status: StatusPreview, RankedWorks: ranked}

	latest, err := s.latestRun(ctx, res.RunDate)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		res.Status = latest.Status
		res.RunID = latest.ID
		res.Code = latest.Code
		res.Attempt = latest.Attempt
	}

	return res, nil
}

// ExecuteDistribution ranks date, allocates author and consumer rewards and
// pays them out, tracking the whole flow as a run. Validation and duplicate
// checks happen before anything is written; once the run exists every
// failure leaves it FAILED.
func (s *Service) ExecuteDistribution(ctx context.Context, date string) (*Result, error) {
	d, err := s.parsePastDate(date)
	if err != nil {
		return nil, err
	}

	zapLog := logger(ctx).With(zap.String("run_date", util.FormatDate(d)))

	run, err := s.openRun(ctx, d)
	if err != nil {
		zapLog.Warn("reward run rejected", zap.Error(err))
		return nil, err
	}
	zapLog = zapLog.With(zap.Int64("run_id", run.ID), zap.String("code", run.Code))
	zapLog.Info("reward run requested", zap.Int("attempt", run.Attempt))

	started := s.clock.Now()
	res, err := s.process(ctx, run, d)
	runDuration.Observe(s.clock.Since(started).Seconds())
	if err != nil {
		zapLog.Error("reward run failed", zap.Error(err))
		s.fail(context.WithoutCancel(ctx), run, err)
		runsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return nil, err
	}

	runsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	zapLog.Info("reward run completed",
		zap.Int("ranked", len(res.RankedWorks)),
		zap.Int64("points", res.Summary.Points),
	)

	return res, nil
}

func (s *Service) latestRun(ctx context.Context, day string) (*Run, error) {
	run, err := s.runs.FindOne(ctx, &Run{RunDate: day}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "attempt",
		OrderBy: "desc",
		Allow:   map[string]bool{"attempt": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to load reward run", err)
	}
	return run, nil
}

// openRun creates the REQUESTED run for d. A date whose latest attempt
// failed before recording any reward may be retried as a new attempt; one
// that recorded rewards must be resumed instead so nothing is paid twice.
func (s *Service) openRun(ctx context.Context, d time.Time) (*Run, error) {
	day := util.FormatDate(d)

	latest, err := s.latestRun(ctx, day)
	if err != nil {
		return nil, err
	}

	attempt := 1
	if latest != nil {
		if latest.Status != StatusFailed {
			return nil, errutil.Conflict(fmt.Sprintf("reward run for %s already exists", day), nil,
				errutil.WithDetail("run_id", fmt.Sprintf("%d is %s", latest.ID, latest.Status)))
		}

		recorded, err := s.ledger.CountByRun(ctx, latest.ID)
		if err != nil {
			return nil, err
		}
		if recorded > 0 {
			return nil, errutil.Conflict(fmt.Sprintf("failed reward run for %s has recorded rewards", day), nil,
				errutil.WithDetail("run_id", fmt.Sprintf("resume run %d with POST /v1/rewards/runs/%d/distribute", latest.ID, latest.ID)))
		}
		attempt = latest.Attempt + 1
	}

	return s.createRun(ctx, d, attempt)
}

// createRun inserts attempt for d. The unique (run_date, attempt) index
// turns a concurrent start of the same attempt into a Conflict.
func (s *Service) createRun(ctx context.Context, d time.Time, attempt int) (*Run, error) {
	day := util.FormatDate(d)

	run := &Run{
		ID:      s.node.Generate().Int64(),
		RunDate: day,
		Attempt: attempt,
		Status:  StatusRequested,
	}
	run.Code = s.nextCode(ctx, d, run)

	if err := s.runs.Create(ctx, run); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict(fmt.Sprintf("reward run for %s already exists", day), err)
		}
		return nil, errutil.Internal("failed to create reward run", err)
	}

	return run, nil
}

func (s *Service) nextCode(ctx context.Context, d time.Time, run *Run) string {
	if s.sequence != nil {
		code, err := s.sequence.NextRunCode(ctx, d)
		if err == nil {
			return code
		}
		zap.L().Warn("run code sequence unavailable", zap.Error(err))
	}
	return fmt.Sprintf("RWD-%s-%03d", d.Format("060102"), run.Attempt)
}

func (s *Service) process(ctx context.Context, run *Run, d time.Time) (*Result, error) {
	now := s.clock.Now().UTC()
	if err := s.transition(ctx, run, StatusProgress, map[string]any{"started_at": now}); err != nil {
		return nil, err
	}
	run.StartedAt = &now

	ranked, err := s.ranker.Rank(ctx, d)
	if err != nil {
		return nil, err
	}

	alloc, err := s.allocator.Allocate(ctx, run.ID, d, ranked)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(ranked)
	if err != nil {
		return nil, errutil.Internal("failed to encode ranking", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Record(ctx, tx, alloc.Entries()); err != nil {
			return err
		}
		if err := s.runs.WithTrx(tx).Update(ctx, run.ID, map[string]any{"ranking": datatypes.JSON(snapshot)}); err != nil {
			return errutil.Internal("failed to store ranking snapshot", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	run.Ranking = snapshot

	summary, err := s.ledger.Distribute(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	done := s.clock.Now().UTC()
	if err := s.transition(ctx, run, StatusCompleted, map[string]any{"completed_at": done}); err != nil {
		return nil, err
	}
	run.CompletedAt = &done

	return &Result{
		RunDate:     run.RunDate,
		Status:      run.Status,
		RunID:       run.ID,
		Code:        run.Code,
		Attempt:     run.Attempt,
		RankedWorks: ranked,
		Summary:     summary,
	}, nil
}

// transition moves run to next only if the stored status still matches the
// status run was loaded with.
func (s *Service) transition(ctx context.Context, run *Run, next Status, fields map[string]any) error {
	if !run.Status.CanTransition(next) {
		return invalidTransition(run.Status, next)
	}

	updates := map[string]any{"status": next}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&Run{}).
		Where("id = ? AND status = ?", run.ID, run.Status).
		Updates(updates)
	if res.Error != nil {
		return errutil.Internal("failed to update reward run", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict(fmt.Sprintf("reward run %d changed concurrently", run.ID), nil)
	}

	run.Status = next
	return nil
}

func (s *Service) fail(ctx context.Context, run *Run, cause error) {
	if run.Status.Terminal() {
		return
	}

	now := s.clock.Now().UTC()
	if err := s.transition(ctx, run, StatusFailed, map[string]any{
		"error_msg":    cause.Error(),
		"completed_at": now,
	}); err != nil {
		logger(ctx).Error("failed to mark reward run failed", zap.Int64("run_id", run.ID), zap.Error(err))
		return
	}
	run.ErrorMsg = cause.Error()
	run.CompletedAt = &now
}

// ResumeDistribution pays whatever a run left unpaid. The run keeps its
// status: a FAILED run stays FAILED, its rewards are simply settled.
func (s *Service) ResumeDistribution(ctx context.Context, runID int64) (*Result, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Status.Terminal() {
		return nil, errutil.Conflict(fmt.Sprintf("reward run %d is %s", run.ID, run.Status), nil)
	}

	summary, err := s.ledger.Distribute(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	var ranked []ranking.RankedWork
	if len(run.Ranking) > 0 {
		if err := json.Unmarshal(run.Ranking, &ranked); err != nil {
			return nil, errutil.Internal("failed to decode ranking snapshot", err)
		}
	}

	logger(ctx).Info("reward run resumed",
		zap.Int64("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int64("points", summary.Points),
	)

	return &Result{
		RunDate:     run.RunDate,
		Status:      run.Status,
		RunID:       run.ID,
		Code:        run.Code,
		Attempt:     run.Attempt,
		RankedWorks: ranked,
		Summary:     summary,
	}, nil
}

// UnsettledRun returns the latest run for date when it FAILED with rewards
// still unpaid, and nil otherwise.
func (s *Service) UnsettledRun(ctx context.Context, date string) (*Run, error) {
	d, err := util.ParseDate(date, s.loc)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid reward date", err, errutil.WithDetail("date", err.Error()))
	}

	latest, err := s.latestRun(ctx, util.FormatDate(d))
	if err != nil || latest == nil || latest.Status != StatusFailed {
		return nil, err
	}

	unpaid, err := s.ledger.CountUnpaid(ctx, latest.ID)
	if err != nil {
		return nil, err
	}
	if unpaid == 0 {
		return nil, nil
	}
	return latest, nil
}

func (s *Service) GetRun(ctx context.Context, runID int64) (*Run, error) {
	if runID <= 0 {
		return nil, errutil.NotFound(fmt.Sprintf("reward run %d not found", runID), nil)
	}
	run, err := s.runs.FindOne(ctx, &Run{ID: runID})
	if err != nil {
		return nil, errutil.Internal("failed to load reward run", err)
	}
	if run == nil {
		return nil, errutil.NotFound(fmt.Sprintf("reward run %d not found", runID), nil)
	}
	return run, nil
}

// GetRuns lists every attempt for date, oldest first.
func (s *Service) GetRuns(ctx context.Context, date string) ([]*Run, error) {
	d, err := util.ParseDate(date, s.loc)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid reward date", err, errutil.WithDetail("date", err.Error()))
	}

	runs, err := s.runs.Find(ctx, &Run{RunDate: util.FormatDate(d)}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "attempt",
		OrderBy: "asc",
		Allow:   map[string]bool{"attempt": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to list reward runs", err)
	}
	return runs, nil
}
