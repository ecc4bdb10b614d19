package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the billing principal. CreditBalance is a cached running total
// of the account's ledger entries; both are updated in the same transaction
// and must never diverge. Version increments on every balance change so
// concurrent writers detect lost updates without row locks.
type Account struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	PasswordHash  string    `json:"-"`
	CreditBalance int64     `json:"credit_balance"`
	Version       int64     `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
