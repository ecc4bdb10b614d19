package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/events"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/processor"
)

// ProcessImageArgs is the queue payload for one image transformation task.
// Only the task id travels through the queue; everything else is re-read
// from the task store so redeliveries always see current state.
type ProcessImageArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (ProcessImageArgs) Kind() string { return "process_image" }

// TaskService is the contract the worker needs from the task layer.
type TaskService interface {
	ClaimForProcessing(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	Complete(ctx context.Context, taskID uuid.UUID, version int64, outputRef string) error
	Fail(ctx context.Context, taskID uuid.UUID, version int64, reason string) error
}

// Transformer runs the pure image pipeline: input ref + spec in, output ref out.
type Transformer interface {
	Run(ctx context.Context, inputRef string, spec models.TransformSpec) (string, error)
}

// ProcessImageWorker consumes process_image jobs. Delivery is at least once;
// the claim transition and the ledger idempotency keys make duplicate and
// redelivered runs safe.
type ProcessImageWorker struct {
	river.WorkerDefaults[ProcessImageArgs]
	tasks     TaskService
	transform Transformer
	publisher events.Publisher
	log       *slog.Logger
}

func NewProcessImageWorker(tasks TaskService, transform Transformer, publisher events.Publisher, log *slog.Logger) *ProcessImageWorker {
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &ProcessImageWorker{tasks: tasks, transform: transform, publisher: publisher, log: log}
}

func (w *ProcessImageWorker) Work(ctx context.Context, job *river.Job[ProcessImageArgs]) error {
	task, err := w.tasks.ClaimForProcessing(ctx, job.Args.TaskID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Duplicate delivery of a task that already finished.
			return nil
		}
		return fmt.Errorf("claim task %s: %w", job.Args.TaskID, err)
	}

	outputRef, err := w.transform.Run(ctx, task.InputRef, task.Spec)
	if err != nil {
		var terr *processor.TransformError
		if errors.As(err, &terr) {
			// Terminal for this task: record the classified reason, never
			// the raw internal error, and consume the job.
			if failErr := w.tasks.Fail(ctx, task.ID, task.Version, terr.Reason); failErr != nil {
				if errors.Is(failErr, models.ErrInvalidTransition) {
					return nil
				}
				return fmt.Errorf("transform failed (%s) and marking task failed also failed: %w", terr.Reason, failErr)
			}
			w.publishStatus(ctx, task, models.TaskStatusFailed, terr.Reason)
			return nil
		}
		// Transient (storage etc.): hand back to the queue for redelivery.
		return fmt.Errorf("transform task %s: %w", task.ID, err)
	}

	if err := w.tasks.Complete(ctx, task.ID, task.Version, outputRef); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// The reaper failed this task while we were transforming. The
			// output blob is orphaned but harmless; writing it again on a
			// future run is idempotent.
			w.log.Warn("task finished elsewhere before completion", "task_id", task.ID)
			return nil
		}
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	w.publishStatus(ctx, task, models.TaskStatusCompleted, "")
	return nil
}

func (w *ProcessImageWorker) publishStatus(ctx context.Context, task *models.Task, status, reason string) {
	evt := events.TaskStatusChanged{
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Status:  status,
		Error:   reason,
	}
	if err := w.publisher.Publish(ctx, evt); err != nil {
		// Events are best effort; a broker outage must not fail the task.
		w.log.Warn("publish task event", "task_id", task.ID, "error", err)
	}
}
