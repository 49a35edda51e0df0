package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/pkg/rediskey"
	"smallbiznis-reward/pkg/task"
	"smallbiznis-reward/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type DistributePayload struct {
	RunDate string `json:"run_date"`
	TraceID string `json:"trace_id,omitempty"`
}

type ResumePayload struct {
	RunID int64 `json:"run_id,string"`
}

// EnqueueDistribution schedules ExecuteDistribution for date. Repeated
// enqueues for one date collapse into a single task while the previous one
// is retained.
func EnqueueDistribution(ctx context.Context, enq task.Enqueuer, date string) error {
	payload, err := json.Marshal(DistributePayload{
		RunDate: date,
		TraceID: trace.SpanFromContext(ctx).SpanContext().TraceID().String(),
	})
	if err != nil {
		return err
	}

	_, err = enq.Enqueue(ctx, asynq.NewTask(taskname.RewardDistribute, payload),
		asynq.TaskID(rediskey.BuildDistributeTaskID(date)),
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(0),
		asynq.Retention(72*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().Info("reward distribution already enqueued", zap.String("run_date", date))
		return nil
	}
	return err
}

// EnqueueResume schedules ResumeDistribution for a run left with unpaid
// rewards. A resume already pending for the run absorbs the new one.
func EnqueueResume(ctx context.Context, enq task.Enqueuer, runID int64) error {
	payload, err := json.Marshal(ResumePayload{RunID: runID})
	if err != nil {
		return err
	}
	_, err = enq.Enqueue(ctx, asynq.NewTask(taskname.RewardResume, payload),
		asynq.TaskID(rediskey.BuildResumeTaskID(runID)),
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().Info("reward resume already enqueued", zap.Int64("run_id", runID))
		return nil
	}
	return err
}

// Task adapts the reward service to asynq handlers.
type Task struct {
	svc *Service
	enq task.Enqueuer
}

func NewTask(svc *Service, enq task.Enqueuer) *Task {
	return &Task{svc: svc, enq: enq}
}

func (t *Task) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.RewardDistribute, t.HandleDistributeTask)
	mux.HandleFunc(taskname.RewardResume, t.HandleResumeTask)
}

// HandleDistributeTask never asks asynq to retry: a failed run is FAILED and
// needs a fresh request or a resume, and a duplicate run is already done.
// A failed run that recorded rewards gets a resume task so its unpaid rows
// are settled.
func (t *Task) HandleDistributeTask(ctx context.Context, at *asynq.Task) error {
	var payload DistributePayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", at.Type()),
		zap.String("run_date", payload.RunDate),
		zap.String("trace_id", payload.TraceID),
	)
	zapLog.Info("start reward distribution task")

	res, err := t.svc.ExecuteDistribution(ctx, payload.RunDate)
	if err == nil {
		zapLog.Info("reward distribution task finished", zap.Int64("run_id", res.RunID))
		return nil
	}
	if errutil.Is(err, errutil.StatusValidationFailed) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if rerr := t.resumeUnsettled(ctx, payload.RunDate); rerr != nil {
		zapLog.Error("failed to enqueue reward resume", zap.Error(rerr))
	}

	if errutil.Is(err, errutil.StatusConflict) {
		zapLog.Info("reward distribution skipped", zap.Error(err))
		return nil
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

func (t *Task) resumeUnsettled(ctx context.Context, date string) error {
	run, err := t.svc.UnsettledRun(context.WithoutCancel(ctx), date)
	if err != nil || run == nil {
		return err
	}
	if err := EnqueueResume(ctx, t.enq, run.ID); err != nil {
		return err
	}
	zap.L().Info("enqueued resume for unsettled reward run",
		zap.String("run_date", date),
		zap.Int64("run_id", run.ID),
	)
	return nil
}

func (t *Task) HandleResumeTask(ctx context.Context, at *asynq.Task) error {
	var payload ResumePayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := t.svc.ResumeDistribution(ctx, payload.RunID)
	if err == nil {
		return nil
	}
	switch errutil.StatusOf(err) {
	case errutil.StatusNotFound, errutil.StatusConflict:
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		// transient storage failures are retried; payout is idempotent
		return err
	}
}
