package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// OrderCreator registers orders with the external provider.
type OrderCreator interface {
	CreateOrder(ctx context.Context, amount int64, receipt string) (string, error)
}

// IntentCreator persists purchase intents.
type IntentCreator interface {
	Create(ctx context.Context, p *models.PurchaseIntent) error
}

// Orders creates purchase intents ahead of the provider checkout flow.
type Orders struct {
	provider OrderCreator
	intents  IntentCreator
}

func NewOrders(provider OrderCreator, intents IntentCreator) *Orders {
	return &Orders{provider: provider, intents: intents}
}

// CreateIntent registers an order with the provider and records the intent.
// If the intent insert fails after the provider order was created, the order
// is simply never paid and expires on the provider side; nothing is owed.
func (o *Orders) CreateIntent(ctx context.Context, ownerID uuid.UUID, amount int64) (*models.PurchaseIntent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payments: amount must be positive")
	}

	intentID := uuid.New()
	orderID, err := o.provider.CreateOrder(ctx, amount, intentID.String())
	if err != nil {
		return nil, err
	}

	intent := &models.PurchaseIntent{
		ID:              intentID,
		OwnerID:         ownerID,
		RequestedAmount: amount,
		ProviderOrderID: orderID,
		Status:          models.PurchaseStatusCreated,
	}
	if err := o.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("payments: store intent: %w", err)
	}
	return intent, nil
}

var _ OrderCreator = (*ProviderClient)(nil)
