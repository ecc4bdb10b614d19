package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// ReapStaleArgs is the payload of the periodic maintenance job that enforces
// the visibility timeout on tasks and expires unpaid purchase intents.
type ReapStaleArgs struct{}

func (ReapStaleArgs) Kind() string { return "reap_stale" }

// TaskReaper fails tasks stuck past the visibility timeout.
type TaskReaper interface {
	FailTimedOut(ctx context.Context, now time.Time) (int64, error)
}

// IntentExpirer marks stale purchase intents expired.
type IntentExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReapStaleWorker runs on a schedule. Tasks that outlived the queue's own
// redelivery (worker pool gone, attempts exhausted) get the dispatch-timeout
// failure here so clients never poll a zombie forever.
type ReapStaleWorker struct {
	river.WorkerDefaults[ReapStaleArgs]
	tasks     TaskReaper
	intents   IntentExpirer
	intentTTL time.Duration
	log       *slog.Logger
}

func NewReapStaleWorker(tasks TaskReaper, intents IntentExpirer, intentTTL time.Duration, log *slog.Logger) *ReapStaleWorker {
	if log == nil {
		log = slog.Default()
	}
	if intentTTL <= 0 {
		intentTTL = 24 * time.Hour
	}
	return &ReapStaleWorker{tasks: tasks, intents: intents, intentTTL: intentTTL, log: log}
}

func (w *ReapStaleWorker) Work(ctx context.Context, _ *river.Job[ReapStaleArgs]) error {
	now := time.Now()

	reaped, err := w.tasks.FailTimedOut(ctx, now)
	if err != nil {
		return err
	}
	if reaped > 0 {
		w.log.Warn("reaped timed-out tasks", "count", reaped)
	}

	if w.intents != nil {
		expired, err := w.intents.ExpireStale(ctx, now.Add(-w.intentTTL))
		if err != nil {
			return err
		}
		if expired > 0 {
			w.log.Info("expired stale purchase intents", "count", expired)
		}
	}
	return nil
}
