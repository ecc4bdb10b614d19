package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// ErrInsufficientFunds is returned when a debit would take the balance
// below zero. Never retried; surfaced to the client as a rejected request.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAlreadyApplied signals that the idempotency key was seen before. It is
// an idempotent success, not a failure: the prior entry is returned alongside
// and the balance is unchanged. Callers check it with errors.Is and carry on.
var ErrAlreadyApplied = errors.New("ledger entry already applied")

// AccountStore is the minimal account surface the ledger needs.
type AccountStore interface {
	ApplyDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (newBalance int64, err error)
	GetBalance(ctx context.Context, id uuid.UUID) (int64, error)
}

// EntryStore is the minimal ledger-entry surface.
type EntryStore interface {
	Insert(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) (applied bool, err error)
	GetByKey(ctx context.Context, tx pgx.Tx, reason, key string) (*models.LedgerEntry, error)
}

// Service owns credit balances. Every balance change goes through Debit or
// Credit, which insert an entry and shift the cached balance in the caller's
// transaction; the entry's (reason, idempotency_key) uniqueness turns
// at-least-once delivery from retries into exactly-once effect.
type Service struct {
	accounts AccountStore
	entries  EntryStore
}

func NewService(accounts AccountStore, entries EntryStore) *Service {
	return &Service{accounts: accounts, entries: entries}
}

// Debit removes amount credits from the account. Runs inside the caller's
// transaction: an insufficient balance (or any later failure that rolls the
// transaction back) leaves neither an entry nor a balance change behind.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, idempotencyKey string) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, -amount, models.LedgerReasonDebitForTask, idempotencyKey)
}

// Credit adds amount credits to the account. Same idempotency contract as
// Debit; never fails for insufficiency.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, idempotencyKey string) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, amount, models.LedgerReasonCreditFromPurchase, idempotencyKey)
}

// Balance reads the account's current balance off the primary.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.accounts.GetBalance(ctx, accountID)
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta int64, reason, key string) (*models.LedgerEntry, error) {
	if delta == 0 {
		return nil, fmt.Errorf("ledger: zero amount for key %q", key)
	}

	// Replay check first: callers treat ErrAlreadyApplied as success and may
	// commit, so no balance change can have happened by that point.
	prior, err := s.entries.GetByKey(ctx, tx, reason, key)
	if err == nil {
		return prior, ErrAlreadyApplied
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ledger: lookup key: %w", err)
	}

	// The balance shift and the entry insert land in the same transaction,
	// so balance == sum(entries) holds at every committed state.
	newBalance, err := s.accounts.ApplyDelta(ctx, tx, accountID, delta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) && delta < 0 {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("ledger: apply delta: %w", err)
	}

	entry := &models.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      accountID,
		Delta:          delta,
		Reason:         reason,
		IdempotencyKey: key,
		BalanceAfter:   newBalance,
	}
	applied, err := s.entries.Insert(ctx, tx, entry)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert entry: %w", err)
	}
	if !applied {
		// A concurrent transaction recorded the same key between our lookup
		// and insert. Error out so this transaction rolls back; a retry will
		// land on the ErrAlreadyApplied path.
		return nil, fmt.Errorf("ledger: concurrent duplicate for key %q", key)
	}
	return entry, nil
}
