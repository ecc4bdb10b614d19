package router

import (
	"net/http"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/account"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/auth"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/health"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/payments"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/tasks"
)

// Deps carries the handlers and the auth middleware the router wires up.
type Deps struct {
	Auth     *auth.Handler
	Tasks    *tasks.Handler
	Payments *payments.Handler
	Account  *account.Handler
	Health   *health.Handler

	// RequireAuth wraps authenticated routes.
	RequireAuth func(http.Handler) http.Handler
}

// New returns the http.Handler serving the API under /api/v1.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", d.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", d.Auth.Login)

	mux.Handle("POST "+base+"/tasks", d.RequireAuth(http.HandlerFunc(d.Tasks.Create)))
	mux.Handle("GET "+base+"/tasks", d.RequireAuth(http.HandlerFunc(d.Tasks.List)))
	mux.Handle("GET "+base+"/tasks/{id}", d.RequireAuth(http.HandlerFunc(d.Tasks.Get)))

	mux.Handle("POST "+base+"/payments/orders", d.RequireAuth(http.HandlerFunc(d.Payments.CreateOrder)))
	// The verify callback authenticates via its HMAC signature, not a token.
	mux.HandleFunc("POST "+base+"/payments/verify", d.Payments.VerifyPayment)

	mux.Handle("GET "+base+"/account/me", d.RequireAuth(http.HandlerFunc(d.Account.GetMe)))
	mux.Handle("GET "+base+"/account/ledger", d.RequireAuth(http.HandlerFunc(d.Account.GetLedger)))

	mux.HandleFunc("GET "+base+"/health", d.Health.Check)

	return mux
}
