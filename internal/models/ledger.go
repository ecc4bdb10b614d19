package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry reasons. The pair (reason, idempotency_key) is unique across
// all entries, which is what makes replayed debits and credits no-ops.
const (
	LedgerReasonDebitForTask       = "debit-for-task"
	LedgerReasonCreditFromPurchase = "credit-from-purchase"
)

// LedgerEntry is one signed balance change on an account. Delta is negative
// for debits and positive for credits. BalanceAfter is the cached account
// balance recorded in the same transaction as the entry.
type LedgerEntry struct {
	ID             uuid.UUID `json:"id"`
	AccountID      uuid.UUID `json:"account_id"`
	Delta          int64     `json:"delta"`
	Reason         string    `json:"reason"`
	IdempotencyKey string    `json:"idempotency_key"`
	BalanceAfter   int64     `json:"balance_after"`
	CreatedAt      time.Time `json:"created_at"`
}
