package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

type stubTokens struct {
	accountID uuid.UUID
	err       error
}

func (s stubTokens) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return s.accountID, nil
}

type stubAccounts struct {
	account *models.Account
	err     error
}

func (s stubAccounts) GetByID(context.Context, uuid.UUID) (*models.Account, error) {
	return s.account, s.err
}

func serveAuth(t *testing.T, tokens stubTokens, accounts stubAccounts, authz string) (*httptest.ResponseRecorder, *models.Account) {
	t.Helper()
	var seen *models.Account
	handler := JWTAuth(tokens, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccountFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuthSetsAccount(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Email: "a@example.com"}
	rec, seen := serveAuth(t, stubTokens{accountID: acc.ID}, stubAccounts{account: acc}, "Bearer sometoken")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != acc.ID {
		t.Errorf("account not set into context: %v", seen)
	}
}

func TestJWTAuthMissingHeader(t *testing.T) {
	rec, seen := serveAuth(t, stubTokens{}, stubAccounts{}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
	if seen != nil {
		t.Error("handler ran without auth")
	}
}

func TestJWTAuthMalformedHeader(t *testing.T) {
	for _, authz := range []string{"sometoken", "Basic abc", "Bearer"} {
		rec, _ := serveAuth(t, stubTokens{accountID: uuid.New()}, stubAccounts{}, authz)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("authz %q: status %d, want 401", authz, rec.Code)
		}
	}
}

func TestJWTAuthInvalidToken(t *testing.T) {
	rec, _ := serveAuth(t, stubTokens{err: errors.New("expired")}, stubAccounts{}, "Bearer bad")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestJWTAuthUnknownAccount(t *testing.T) {
	rec, _ := serveAuth(t, stubTokens{accountID: uuid.New()}, stubAccounts{err: errors.New("no rows")}, "Bearer tok")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}
