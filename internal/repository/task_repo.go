package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create inserts a task inside the caller's transaction so it commits or
// rolls back together with the debit that paid for it.
func (r *TaskRepo) Create(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	spec, err := json.Marshal(t.Spec)
	if err != nil {
		return fmt.Errorf("marshal transform spec: %w", err)
	}
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, owner_id, input_ref, transform_spec, status, credits_charged)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version, created_at, updated_at
	`, t.ID, t.OwnerID, t.InputRef, spec, t.Status, t.CreditsCharged).Scan(&t.Version, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, owner_id, input_ref, output_ref, transform_spec, status, error_reason, credits_charged, version, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id))
}

func (r *TaskRepo) ListByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, input_ref, output_ref, transform_spec, status, error_reason, credits_charged, version, created_at, updated_at
		FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Transition applies a version-checked status change. It reports applied ==
// false when the observed version is stale, leaving the row untouched; the
// caller re-reads and decides between retry and InvalidTransition.
func (r *TaskRepo) Transition(ctx context.Context, id uuid.UUID, fromVersion int64, status string, outputRef, errorReason *string) (applied bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $3,
		    output_ref = COALESCE($4, output_ref),
		    error_reason = COALESCE($5, error_reason),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $2
	`, id, fromVersion, status, outputRef, errorReason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailStale marks every non-terminal task untouched since cutoff as failed
// with the given reason. Version still advances so a slow worker holding a
// stale version loses the race cleanly.
func (r *TaskRepo) FailStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $1, error_reason = $2, version = version + 1, updated_at = now()
		WHERE status IN ($3, $4) AND updated_at < $5
	`, models.TaskStatusFailed, reason, models.TaskStatusPending, models.TaskStatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *TaskRepo) scanOne(row pgx.Row) (*models.Task, error) {
	var t models.Task
	var spec []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.InputRef, &t.OutputRef, &spec, &t.Status, &t.ErrorReason, &t.CreditsCharged, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(spec, &t.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal transform spec: %w", err)
	}
	return &t, nil
}
