package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/metrics"
)

type TaskType string

const interruptedText = "interrupted, waiting for the next run"

const (
	TaskTypeFetchLink TaskType = "fetch_link"
	TaskTypeEmbedLink TaskType = "embed_link"
)

// Worker is one pipeline step that can be run on demand or by the scheduler.
type Worker interface {
	Run(ctx context.Context, id *int64) (Result, error)
	Type() TaskType
}

// Result describes a single worker invocation. Processed is false when there
// was nothing to claim.
type Result struct {
	LinkID    int64
	Processed bool
}

// Task tracks one invocation for logging and metrics.
type Task struct {
	Type      TaskType
	LinkID    int64
	StartedAt *time.Time
}

func NewTask(taskType TaskType) *Task {
	return &Task{Type: taskType}
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

// finish logs the outcome of the invocation and records it in m.
func (t *Task) finish(m *metrics.Metrics, step database.Step, err error) {
	duration := t.GetDuration()

	switch {
	case err != nil:
		m.ObserveWorker(string(step), metrics.OutcomeFailed, duration)
		slog.Error("Task failed",
			"type", t.Type,
			"link_id", t.LinkID,
			"duration", duration,
			"error", err)
	case t.LinkID == 0:
		m.ObserveWorker(string(step), metrics.OutcomeIdle, duration)
		slog.Debug("No links to process", "type", t.Type)
	default:
		m.ObserveWorker(string(step), metrics.OutcomeProcessed, duration)
		slog.Info("Task completed",
			"type", t.Type,
			"link_id", t.LinkID,
			"duration", duration)
	}
}

// claim takes the next eligible link for step, or the link with the given
// id. A nil link with a nil error means there was nothing to do.
func claim(ctx context.Context, queue database.QueueRepository, step database.Step, id *int64) (*database.Link, error) {
	if id == nil {
		return queue.ClaimNext(ctx, step)
	}

	link, err := queue.ClaimByID(ctx, step, *id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("link %d: %w", *id, database.ErrNotFound)
	}
	return link, err
}

// fail records cause against the claimed link and returns the error the
// caller sees. The write is detached from ctx cancellation so a cancelled
// run still releases its claim. A run abandoned by its caller is released
// without consuming a retry; timeouts still count as failures.
func fail(ctx context.Context, queue database.QueueRepository, step database.Step, linkID int64, cause error) error {
	if errors.Is(cause, context.Canceled) && ctx.Err() != nil {
		interrupted := fmt.Errorf("%s of link %d interrupted: %w", step, linkID, cause)
		if err := queue.Release(context.WithoutCancel(ctx), linkID, step, interruptedText); err != nil {
			return errors.Join(interrupted, fmt.Errorf("failed to release link %d: %w", linkID, err))
		}
		slog.Info("Link released after cancellation", "step", step, "link_id", linkID)
		return interrupted
	}

	status, err := queue.MarkFailure(context.WithoutCancel(ctx), linkID, step, cause.Error())

	stepErr := &StepError{
		Step:     step,
		LinkID:   linkID,
		Terminal: status == database.StatusFailed,
		Err:      cause,
	}
	if err != nil {
		return errors.Join(stepErr, fmt.Errorf("failed to record failure of link %d: %w", linkID, err))
	}

	if stepErr.Terminal {
		slog.Warn("Link failed after maximum retries", "step", step, "link_id", linkID, "error", cause)
	}

	return stepErr
}
