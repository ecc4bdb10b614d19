package models

import (
	"time"

	"github.com/google/uuid"
)

// Purchase intent status enums.
const (
	PurchaseStatusCreated  = "created"
	PurchaseStatusVerified = "verified"
	PurchaseStatusExpired  = "expired"
)

// PurchaseIntent is created before the user is redirected to the payment
// provider and consumed exactly once by the reconciler. RequestedAmount is
// in whole currency units. ProviderPaymentID and CreditsGranted are set when
// the intent is verified.
type PurchaseIntent struct {
	ID                uuid.UUID `json:"id"`
	OwnerID           uuid.UUID `json:"owner_id"`
	RequestedAmount   int64     `json:"requested_amount"`
	ProviderOrderID   string    `json:"provider_order_id"`
	ProviderPaymentID *string   `json:"provider_payment_id,omitempty"`
	CreditsGranted    int64     `json:"credits_granted"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
