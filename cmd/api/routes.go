package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/account"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/auth"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/config"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/health"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/middleware"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/payments"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/repository"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/router"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/storage"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/tasks"
)

// buildHandler wires repositories and services into the HTTP surface.
func buildHandler(
	cfg *config.Config,
	pool *pgxpool.Pool,
	blobs *storage.Store,
	accountRepo *repository.AccountRepo,
	ledgerRepo *repository.LedgerRepo,
	ledgerSvc *ledger.Service,
	taskSvc *tasks.Service,
	orders *payments.Orders,
	reconciler *payments.Reconciler,
	logger *slog.Logger,
) http.Handler {
	authSvc := auth.NewService(accountRepo, cfg.Auth.JWTSecret)

	return router.New(router.Deps{
		Auth:     auth.NewHandler(authSvc, logger),
		Tasks:    &tasks.Handler{Svc: taskSvc, Logger: logger},
		Payments: &payments.Handler{Orders: orders, Reconciler: reconciler, Logger: logger},
		Account:  &account.Handler{Ledger: ledgerSvc, Entries: ledgerRepo, Logger: logger},
		Health:   &health.Handler{DB: pool, Storage: blobs},

		RequireAuth: middleware.JWTAuth(authSvc, accountRepo),
	})
}
