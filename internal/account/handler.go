package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/middleware"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// BalanceReader exposes the account's current balance.
type BalanceReader interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// EntryLister lists the account's ledger history.
type EntryLister interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

// Handler serves /api/v1/account endpoints.
type Handler struct {
	Ledger  BalanceReader
	Entries EntryLister
	Logger  *slog.Logger
}

// GetMe handles GET /api/v1/account/me. The balance is read fresh rather
// than from the token-time snapshot so a just-verified purchase shows up.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("get balance failed", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             acc.ID,
		"email":          acc.Email,
		"full_name":      acc.FullName,
		"credit_balance": balance,
		"created_at":     acc.CreatedAt,
	})
}

// GetLedger handles GET /api/v1/account/ledger, newest entries first.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.Entries.ListByAccountID(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list ledger failed", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
