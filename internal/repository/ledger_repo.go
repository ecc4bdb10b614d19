package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Insert writes a ledger entry inside the caller's transaction. The unique
// index on (reason, idempotency_key) is the idempotency gate: a replayed key
// inserts nothing and Insert reports applied == false.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) (applied bool, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, delta, reason, idempotency_key, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (reason, idempotency_key) DO NOTHING
		RETURNING created_at
	`, e.ID, e.AccountID, e.Delta, e.Reason, e.IdempotencyKey, e.BalanceAfter).Scan(&e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByKey returns the entry previously recorded for (reason, key).
func (r *LedgerRepo) GetByKey(ctx context.Context, tx pgx.Tx, reason, key string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, delta, reason, idempotency_key, balance_after, created_at
		FROM ledger_entries WHERE reason = $1 AND idempotency_key = $2
	`, reason, key).Scan(&e.ID, &e.AccountID, &e.Delta, &e.Reason, &e.IdempotencyKey, &e.BalanceAfter, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, delta, reason, idempotency_key, balance_after, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Delta, &e.Reason, &e.IdempotencyKey, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
