package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/procureflow/procureflow/internal/app"
	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/auth"
	"github.com/procureflow/procureflow/internal/billing"
	"github.com/procureflow/procureflow/internal/budget"
	"github.com/procureflow/procureflow/internal/org"
	"github.com/procureflow/procureflow/internal/platform/cache"
	"github.com/procureflow/procureflow/internal/platform/db"
	"github.com/procureflow/procureflow/internal/procurement"
	"github.com/procureflow/procureflow/internal/sequence"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/transfer"
	"github.com/procureflow/procureflow/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "procureflow_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	recorder := audit.NewPGRecorder(pool)
	numbers := sequence.NewSequencer(sequence.NewPGStore(pool))

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, redisClient, auth.NewLogNotifier(logger))
	authHandler := auth.NewHandler(logger, authService, sessionManager)
	actorResolver := auth.NewMiddleware(logger, authService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, numbers, recorder, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, recorder, logger)
	transferHandler := transfer.NewHandler(logger, transferService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, recorder, logger)
	billingHandler := billing.NewHandler(logger, billingService)

	orgRepo := org.NewRepository(pool)
	orgService := org.NewService(orgRepo, recorder, logger)
	orgHandler := org.NewHandler(logger, orgService)

	budgetRepo := budget.NewRepository(pool)
	budgetService := budget.NewService(budgetRepo, logger)
	budgetHandler := budget.NewHandler(logger, budgetService)

	auditHandler := audit.NewHandler(logger, recorder)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		ActorResolver:      actorResolver,
		AuthHandler:        authHandler,
		ProcurementHandler: procurementHandler,
		TransferHandler:    transferHandler,
		BillingHandler:     billingHandler,
		OrgHandler:         orgHandler,
		BudgetHandler:      budgetHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
