package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

var (
	// ErrUnknownOrder means no purchase intent matches the provider order id.
	ErrUnknownOrder = errors.New("unknown payment order")

	// ErrAlreadyVerified is an idempotent success: the callback was applied
	// before and the previously granted credit amount is returned.
	ErrAlreadyVerified = errors.New("payment already verified")

	// ErrInvalidSignature means the callback signature does not match; a
	// forged or corrupted callback. No state is mutated.
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrOrderExpired means the intent sat unpaid past its TTL.
	ErrOrderExpired = errors.New("payment order expired")
)

// IntentStore is the purchase-intent surface the reconciler needs.
type IntentStore interface {
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PurchaseIntent, error)
	MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerPaymentID string, creditsGranted int64) error
}

// Ledger is the credit surface used when a payment verifies.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, idempotencyKey string) (*models.LedgerEntry, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config carries only the settings the reconciler needs.
type Config struct {
	// WebhookSecret is the shared secret the provider signs callbacks with.
	WebhookSecret string
	// CreditsPerUnit converts whole currency units into credits. Credits
	// are granted as floor(amount * CreditsPerUnit): fractional credits
	// cannot be spent, so rounding deliberately favors the platform.
	CreditsPerUnit decimal.Decimal
}

// Reconciler applies verified payment callbacks to the ledger exactly once.
type Reconciler struct {
	pool    TxBeginner
	intents IntentStore
	ledger  Ledger
	cfg     Config
}

func NewReconciler(pool TxBeginner, intents IntentStore, ledger Ledger, cfg Config) *Reconciler {
	return &Reconciler{pool: pool, intents: intents, ledger: ledger, cfg: cfg}
}

// Verify checks the provider callback and credits the buyer. Replays after
// success return the same credit amount with ErrAlreadyVerified and change
// nothing. A crash between the ledger credit and marking the intent verified
// is retry-safe: the credit's idempotency key is the provider payment id.
func (r *Reconciler) Verify(ctx context.Context, providerOrderID, providerPaymentID, signature string) (creditsAdded int64, err error) {
	intent, err := r.intents.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownOrder
		}
		return 0, fmt.Errorf("payments: lookup intent: %w", err)
	}

	switch intent.Status {
	case models.PurchaseStatusVerified:
		return intent.CreditsGranted, ErrAlreadyVerified
	case models.PurchaseStatusExpired:
		return 0, ErrOrderExpired
	}

	// Signature check before any mutation: forged callbacks stop here.
	if !r.validSignature(providerOrderID, providerPaymentID, signature) {
		return 0, ErrInvalidSignature
	}

	credits := r.CreditsFor(intent.RequestedAmount)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("payments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := r.ledger.Credit(ctx, tx, intent.OwnerID, credits, providerPaymentID); err != nil && !errors.Is(err, ledger.ErrAlreadyApplied) {
		return 0, fmt.Errorf("payments: credit: %w", err)
	}
	if err := r.intents.MarkVerified(ctx, tx, intent.ID, providerPaymentID, credits); err != nil {
		return 0, fmt.Errorf("payments: mark verified: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("payments: commit: %w", err)
	}
	return credits, nil
}

// CreditsFor converts whole currency units to credits with the truncating
// policy: floor(amount * CreditsPerUnit).
func (r *Reconciler) CreditsFor(requestedAmount int64) int64 {
	return decimal.NewFromInt(requestedAmount).Mul(r.cfg.CreditsPerUnit).Floor().IntPart()
}

func (r *Reconciler) validSignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(r.cfg.WebhookSecret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

var _ Ledger = (*ledger.Service)(nil)
