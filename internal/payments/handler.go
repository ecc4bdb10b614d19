package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/middleware"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// IntentService creates purchase intents.
type IntentService interface {
	CreateIntent(ctx context.Context, ownerID uuid.UUID, amount int64) (*models.PurchaseIntent, error)
}

// Verifier applies provider payment callbacks.
type Verifier interface {
	Verify(ctx context.Context, providerOrderID, providerPaymentID, signature string) (int64, error)
}

// Handler serves /api/v1/payments endpoints.
type Handler struct {
	Orders     IntentService
	Reconciler Verifier
	Logger     *slog.Logger
}

type createOrderReq struct {
	Amount int64 `json:"amount"`
}

type createOrderResp struct {
	IntentID        string `json:"intent_id"`
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
}

// CreateOrder handles POST /api/v1/payments/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"amount must be positive"}`, http.StatusBadRequest)
		return
	}
	intent, err := h.Orders.CreateIntent(r.Context(), acc.ID, req.Amount)
	if err != nil {
		h.Logger.Error("create payment order failed", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"payment provider unavailable"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResp{
		IntentID:        intent.ID.String(),
		ProviderOrderID: intent.ProviderOrderID,
		Amount:          intent.RequestedAmount,
	})
}

type verifyReq struct {
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Signature         string `json:"signature"`
}

type verifyResp struct {
	CreditsAdded int64  `json:"credits_added"`
	Status       string `json:"status"`
}

// VerifyPayment handles POST /api/v1/payments/verify. Replays of an already
// verified payment return 200 with the originally granted credits.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ProviderOrderID == "" || req.ProviderPaymentID == "" || req.Signature == "" {
		http.Error(w, `{"error":"missing required fields"}`, http.StatusBadRequest)
		return
	}

	credits, err := h.Reconciler.Verify(r.Context(), req.ProviderOrderID, req.ProviderPaymentID, req.Signature)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verifyResp{CreditsAdded: credits, Status: "verified"})
	case errors.Is(err, ErrAlreadyVerified):
		writeJSON(w, http.StatusOK, verifyResp{CreditsAdded: credits, Status: "verified"})
	case errors.Is(err, ErrUnknownOrder):
		http.Error(w, `{"error":"unknown order"}`, http.StatusNotFound)
	case errors.Is(err, ErrInvalidSignature):
		http.Error(w, `{"error":"invalid signature"}`, http.StatusBadRequest)
	case errors.Is(err, ErrOrderExpired):
		http.Error(w, `{"error":"order expired"}`, http.StatusGone)
	default:
		h.Logger.Error("payment verification failed", "provider_order_id", req.ProviderOrderID, "error", err)
		http.Error(w, `{"error":"verification failed"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
