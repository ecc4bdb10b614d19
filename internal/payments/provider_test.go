package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProviderCreateOrder(t *testing.T) {
	var got createOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" {
			t.Errorf("path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Errorf("basic auth: %q %q %v", user, pass, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		_ = json.NewEncoder(w).Encode(createOrderResponse{ID: "order_abc"})
	}))
	defer srv.Close()

	c := NewProviderClient(srv.URL, "key", "secret")
	id, err := c.CreateOrder(context.Background(), 500, "receipt-1")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if id != "order_abc" {
		t.Errorf("order id: got %q", id)
	}
	// 500 whole units travel as 50000 minor units.
	if got.Amount != 50000 {
		t.Errorf("amount: got %d, want 50000", got.Amount)
	}
	if got.Currency != "INR" || got.Receipt != "receipt-1" {
		t.Errorf("request: %+v", got)
	}
}

func TestProviderCreateOrderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewProviderClient(srv.URL, "key", "wrong")
	if _, err := c.CreateOrder(context.Background(), 500, "r"); err == nil {
		t.Fatal("provider error status not surfaced")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(createOrderResponse{})
	}))
	defer empty.Close()

	c = NewProviderClient(empty.URL, "key", "secret")
	if _, err := c.CreateOrder(context.Background(), 500, "r"); err == nil {
		t.Fatal("empty order id accepted")
	}
}
