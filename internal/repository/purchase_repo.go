package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

func (r *PurchaseRepo) Create(ctx context.Context, p *models.PurchaseIntent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO purchase_intents (id, owner_id, requested_amount, provider_order_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.OwnerID, p.RequestedAmount, p.ProviderOrderID, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PurchaseRepo) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PurchaseIntent, error) {
	var p models.PurchaseIntent
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, requested_amount, provider_order_id, provider_payment_id, credits_granted, status, created_at, updated_at
		FROM purchase_intents WHERE provider_order_id = $1
	`, providerOrderID).Scan(&p.ID, &p.OwnerID, &p.RequestedAmount, &p.ProviderOrderID, &p.ProviderPaymentID, &p.CreditsGranted, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkVerified records the payment id and granted credits inside the
// caller's transaction, alongside the ledger credit.
func (r *PurchaseRepo) MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerPaymentID string, creditsGranted int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE purchase_intents
		SET status = $2, provider_payment_id = $3, credits_granted = $4, updated_at = now()
		WHERE id = $1
	`, id, models.PurchaseStatusVerified, providerPaymentID, creditsGranted)
	return err
}

// ExpireStale marks intents still unpaid after cutoff as expired.
func (r *PurchaseRepo) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE purchase_intents
		SET status = $1, updated_at = now()
		WHERE status = $2 AND created_at < $3
	`, models.PurchaseStatusExpired, models.PurchaseStatusCreated, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
