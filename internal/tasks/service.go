package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/execution"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

var (
	// ErrTaskNotFound covers both a missing task and a task owned by
	// someone else; callers see no difference.
	ErrTaskNotFound = errors.New("task not found")

	// ErrConflict means the optimistic version check lost a race. Retried
	// locally; never shown to a client directly.
	ErrConflict = errors.New("task version conflict")

	// ErrBusy surfaces after conflict retries are exhausted.
	ErrBusy = errors.New("task is busy, retry later")

	// ErrStorageUnavailable wraps blob store failures during submission.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// maxConflictRetries bounds local re-read-and-retry on version conflicts.
const maxConflictRetries = 3

// TaskStore is the repository surface the service needs.
type TaskStore interface {
	Create(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error)
	Transition(ctx context.Context, id uuid.UUID, fromVersion int64, status string, outputRef, errorReason *string) (bool, error)
	FailStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// Ledger is the debit surface used during submission.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, idempotencyKey string) (*models.LedgerEntry, error)
}

// BlobStore stores uploaded bytes and returns an opaque ref.
type BlobStore interface {
	Put(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InsertProcessImageTxFunc enqueues a process_image job within the given
// transaction. Provided by main as a closure over river.Client.InsertTx.
type InsertProcessImageTxFunc func(ctx context.Context, tx pgx.Tx, args execution.ProcessImageArgs) error

// Config carries only the settings the task service needs.
type Config struct {
	CreditsPerTask    int64
	VisibilityTimeout time.Duration
}

// Service orchestrates submission (debit + create + enqueue as one unit of
// work) and owns the task state machine on behalf of workers.
type Service struct {
	pool             TxBeginner
	store            TaskStore
	ledger           Ledger
	blobs            BlobStore
	insertProcessJob InsertProcessImageTxFunc
	cfg              Config
}

func NewService(pool TxBeginner, store TaskStore, ledger Ledger, blobs BlobStore, insert InsertProcessImageTxFunc, cfg Config) *Service {
	if cfg.CreditsPerTask <= 0 {
		cfg.CreditsPerTask = 1
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	return &Service{pool: pool, store: store, ledger: ledger, blobs: blobs, insertProcessJob: insert, cfg: cfg}
}

// Submit stores the uploaded bytes, then debits the owner and creates the
// task and its queue job in one transaction. The debit's idempotency key is
// the task id, so a retried submission of the same task can never charge
// twice, and a rollback leaves no debit and no task behind.
func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, filename string, image io.Reader, spec models.TransformSpec) (*models.Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	// Blob upload happens before any ledger effect: a storage failure here
	// rejects the submission without touching credits.
	inputRef, err := s.blobs.Put(ctx, "uploads", fmt.Sprintf("%s_%s", ownerID, filename), image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	task := &models.Task{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		InputRef:       inputRef,
		Spec:           spec,
		Status:         models.TaskStatusPending,
		CreditsCharged: s.cfg.CreditsPerTask,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.ledger.Debit(ctx, tx, ownerID, task.CreditsCharged, task.ID.String()); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("submit: create task: %w", err)
	}
	if err := s.insertProcessJob(ctx, tx, execution.ProcessImageArgs{TaskID: task.ID}); err != nil {
		return nil, fmt.Errorf("submit: enqueue: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("submit: commit: %w", err)
	}
	return task, nil
}

// Get returns the task if it exists and belongs to ownerID.
func (s *Service) Get(ctx context.Context, ownerID, taskID uuid.UUID) (*models.Task, error) {
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// List returns the owner's tasks, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	return s.store.ListByOwnerID(ctx, ownerID)
}

// ClaimForProcessing moves a pending task to processing on behalf of a
// worker. A task already in processing is handed back as-is: its previous
// worker crashed and the queue redelivered it, and transforms are pure so
// re-running is safe. A terminal task means a duplicate delivery and yields
// ErrInvalidTransition.
func (s *Service) ClaimForProcessing(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		t, err := s.store.GetByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrTaskNotFound
			}
			return nil, err
		}
		switch t.Status {
		case models.TaskStatusProcessing:
			return t, nil
		case models.TaskStatusCompleted, models.TaskStatusFailed:
			return nil, models.ErrInvalidTransition
		}
		applied, err := s.store.Transition(ctx, t.ID, t.Version, models.TaskStatusProcessing, nil, nil)
		if err != nil {
			return nil, err
		}
		if applied {
			t.Status = models.TaskStatusProcessing
			t.Version++
			return t, nil
		}
		// Lost the race; re-read and reclassify.
	}
	return nil, ErrBusy
}

// Complete moves processing → completed and records the output ref. The
// version is the one observed at claim time; a racing reaper wins the
// version check and Complete reports the loss instead of overwriting.
func (s *Service) Complete(ctx context.Context, taskID uuid.UUID, version int64, outputRef string) error {
	return s.finish(ctx, taskID, version, models.TaskStatusCompleted, &outputRef, nil)
}

// Fail moves pending/processing → failed with a classified reason.
func (s *Service) Fail(ctx context.Context, taskID uuid.UUID, version int64, reason string) error {
	return s.finish(ctx, taskID, version, models.TaskStatusFailed, nil, &reason)
}

func (s *Service) finish(ctx context.Context, taskID uuid.UUID, version int64, status string, outputRef, errorReason *string) error {
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		applied, err := s.store.Transition(ctx, taskID, version, status, outputRef, errorReason)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		t, err := s.store.GetByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTaskNotFound
			}
			return err
		}
		if models.TerminalStatus(t.Status) {
			return models.ErrInvalidTransition
		}
		if !models.CanTransition(t.Status, status) {
			return models.ErrInvalidTransition
		}
		version = t.Version
	}
	return ErrBusy
}

// FailTimedOut fails every task stuck in a non-terminal state past the
// visibility timeout, recording the dispatch-timeout reason. Called by the
// periodic reaper job.
func (s *Service) FailTimedOut(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.cfg.VisibilityTimeout)
	return s.store.FailStale(ctx, cutoff, models.TaskErrorDispatchTimeout)
}

// CreditsPerTask exposes the configured submission price (for handlers).
func (s *Service) CreditsPerTask() int64 { return s.cfg.CreditsPerTask }

var _ Ledger = (*ledger.Service)(nil)
