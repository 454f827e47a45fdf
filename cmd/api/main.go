package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"retail-ledger/config"
	apidocs "retail-ledger/docs/api"
	httpHandler "retail-ledger/internal/adapter/http/handler"
	memStorage "retail-ledger/internal/adapter/storage/memory"
	pgStorage "retail-ledger/internal/adapter/storage/postgres"
	redisStorage "retail-ledger/internal/adapter/storage/redis"
	"retail-ledger/internal/core/ports"
	"retail-ledger/internal/scheduler"
	"retail-ledger/internal/service"
	"retail-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// storage bundles the repositories of the selected backend.
type storage struct {
	users    ports.UserRepository
	accounts ports.AccountRepository
	txns     ports.TransactionRepository
	bills    ports.BillRepository
	outbox   ports.OutboxRepository
	audit    ports.AuditRepository
	runner   ports.TxRunner
	health   ports.HealthChecker
	close    func()
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.Server.Mode)
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty, "retail-ledger")

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Retail Ledger")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required (LEDGER_JWT_SECRET)")
	}

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}

	// Redis backs idempotency replays, relay leases, notifications and rate
	// limits. Every one of them is optional.
	var (
		idempCache     ports.IdempotencyCache
		lease          ports.LeaseLock
		inbox          ports.NotificationInbox
		rateLimitStore *redisStorage.RateLimitStore
		subscribers    []ports.EventSubscriber
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		lease = redisStorage.NewLeaseLock(rdb)
		if cfg.RateLimit.Enabled {
			rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		}
		notifications := redisStorage.NewNotificationPublisher(rdb)
		inbox = notifications
		subscribers = append(subscribers, service.NewNotificationSubscriber(notifications, log))
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	subscribers = append(subscribers, service.NewEmailSubscriber(service.NewLogEmailSender(log), log))

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricsSub, err := service.NewMetricsSubscriber(reg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register metrics")
		}
		subscribers = append(subscribers, metricsSub)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(store.audit, log)

	ledgerSvc := service.NewLedgerService(store.accounts, store.txns, store.bills, store.users, store.outbox, idempCache, log)
	accountSvc := service.NewAccountService(store.accounts, store.txns, store.users, store.outbox, log)
	billSvc := service.NewBillService(store.accounts, store.bills, log)
	authSvc := service.NewAuthService(store.users, store.runner, hashSvc, tokenSvc, auditSvc, service.LockoutPolicy{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Duration:    cfg.Lockout.Duration,
	}, log)

	// Background jobs
	jobs := scheduler.New(log)
	if cfg.Outbox.Enabled {
		relay := service.NewOutboxRelay(store.outbox, subscribers, lease, service.RelayConfig{
			BatchSize: cfg.Outbox.BatchSize,
			LeaseTTL:  cfg.Outbox.LeaseTTL,
		}, log)
		if err := jobs.Register(cfg.Outbox.Schedule, relay, cfg.Outbox.Timeout); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule outbox relay")
		}
	}
	if cfg.Interest.Enabled {
		rates, err := service.ParseInterestRates(cfg.Interest.Rates)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid interest rates")
		}
		interest := service.NewInterestJob(store.accounts, store.txns, ledgerSvc, store.runner, service.InterestConfig{
			Rates:          rates,
			PeriodsPerYear: cfg.Interest.PeriodsPerYear,
		}, log)
		if err := jobs.Register(cfg.Interest.Schedule, interest, cfg.Interest.Timeout); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule interest accrual")
		}
	}
	jobs.Start()

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		TokenSvc:       tokenSvc,
		AccountSvc:     accountSvc,
		LedgerSvc:      ledgerSvc,
		BillSvc:        billSvc,
		TxRunner:       store.runner,
		Jobs:           jobs,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Notifications:  inbox,
		Metrics:        metricsHandler,
		Docs:           httpHandler.NewDocsHandler(apidocs.OpenAPI, apidocs.SwaggerPage),
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Background jobs did not stop in time")
	}
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory storage, data is lost on exit")
		s := memStorage.NewStore()
		return &storage{
			users:    memStorage.NewUserRepo(s),
			accounts: memStorage.NewAccountRepo(s),
			txns:     memStorage.NewTransactionRepo(s),
			bills:    memStorage.NewBillRepo(s),
			outbox:   memStorage.NewOutboxRepo(s),
			audit:    memStorage.NewAuditRepo(s),
			runner:   memStorage.NewTransactor(s, cfg.Database.TxMaxAttempts, log),
			health:   memStorage.HealthCheck{},
			close:    func() {},
		}, nil

	case "postgres":
		if cfg.Database.AutoMigrate {
			if err := migrateUp(cfg.Database, log); err != nil {
				return nil, err
			}
		}

		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		log.Info().Msg("PostgreSQL connected")

		return &storage{
			users:    pgStorage.NewUserRepo(pool),
			accounts: pgStorage.NewAccountRepo(pool),
			txns:     pgStorage.NewTransactionRepo(pool),
			bills:    pgStorage.NewBillRepo(pool),
			outbox:   pgStorage.NewOutboxRepo(pool),
			audit:    pgStorage.NewAuditRepo(pool),
			runner:   pgStorage.NewTransactor(pool, cfg.Database.TxMaxAttempts, log),
			health:   pgStorage.NewHealthCheck(pool),
			close:    pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func migrateUp(cfg config.DatabaseConfig, log zerolog.Logger) error {
	m, err := pgStorage.NewMigrator(cfg, log)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
