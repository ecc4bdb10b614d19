package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const providerTimeout = 10 * time.Second

// ProviderClient creates orders with the external payment provider. The
// provider later calls back with (order id, payment id, signature), which
// the Reconciler verifies.
type ProviderClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewProviderClient(baseURL, keyID, keySecret string) *ProviderClient {
	return &ProviderClient{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: providerTimeout},
	}
}

type createOrderRequest struct {
	// Amount is in the provider's minor unit (1/100 of a currency unit).
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// CreateOrder registers an order for the given amount of whole currency
// units and returns the provider's order id.
func (c *ProviderClient) CreateOrder(ctx context.Context, amount int64, receipt string) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amount * 100,
		Currency: "INR",
		Receipt:  receipt,
	})
	if err != nil {
		return "", fmt.Errorf("payments: marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("payments: create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payments: provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("payments: provider returned status %d", resp.StatusCode)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("payments: decode order response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("payments: provider returned empty order id")
	}
	return out.ID, nil
}
