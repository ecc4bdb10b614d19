package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/config"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/events"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/execution"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/payments"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/processor"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/repository"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/storage"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/tasks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Blob storage
	blobs, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		slog.Error("Blob storage init failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	purchaseRepo := repository.NewPurchaseRepo(pool)

	ledgerSvc := ledger.NewService(accountRepo, ledgerRepo)

	// Task service: insert func is set after the River client exists
	// (breaks the init cycle between service and queue).
	var insertMu sync.Mutex
	var insertFn tasks.InsertProcessImageTxFunc
	insertProcessImage := func(ctx context.Context, tx pgx.Tx, args execution.ProcessImageArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	taskSvc := tasks.NewService(pool, taskRepo, ledgerSvc, blobs, insertProcessImage, tasks.Config{
		CreditsPerTask:    cfg.Worker.CreditsPerTask,
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
	})

	// Lifecycle events
	var publisher events.Publisher = events.Noop{}
	if len(cfg.Events.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		defer kp.Close()
		publisher = kp
	}

	// Workers
	transform := processor.New(blobs)
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewProcessImageWorker(taskSvc, transform, publisher, logger))
	river.AddWorker(workers, execution.NewReapStaleWorker(taskSvc, purchaseRepo, cfg.Payments.IntentTTL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Worker.MaxWorkers},
		},
		Workers:              workers,
		RescueStuckJobsAfter: cfg.Worker.VisibilityTimeout,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Worker.ReapInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return execution.ReapStaleArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.ProcessImageArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Payments
	provider := payments.NewProviderClient(cfg.Payments.ProviderURL, cfg.Payments.KeyID, cfg.Payments.KeySecret)
	orders := payments.NewOrders(provider, purchaseRepo)
	reconciler := payments.NewReconciler(pool, purchaseRepo, ledgerSvc, payments.Config{
		WebhookSecret:  cfg.Payments.WebhookSecret,
		CreditsPerUnit: cfg.Payments.CreditsPerUnit,
	})

	handler := buildHandler(cfg, pool, blobs, accountRepo, ledgerRepo, ledgerSvc, taskSvc, orders, reconciler, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
