package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, full_name, password_hash, credit_balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at
	`, a.ID, a.Email, a.FullName, a.PasswordHash, a.CreditBalance).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, credit_balance, version, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &a.CreditBalance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, credit_balance, version, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &a.CreditBalance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ApplyDelta atomically shifts the cached balance inside the caller's
// transaction. The WHERE clause keeps the balance non-negative; pgx.ErrNoRows
// therefore means the account is missing or the debit would overdraw it.
func (r *AccountRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET credit_balance = credit_balance + $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND credit_balance + $1 >= 0
		RETURNING credit_balance
	`, delta, id).Scan(&newBalance)
	return newBalance, err
}

// GetBalance reads the cached balance off the primary. This is the strongly
// consistent path the submission flow relies on.
func (r *AccountRepo) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT credit_balance FROM accounts WHERE id = $1
	`, id).Scan(&balance)
	return balance, err
}
