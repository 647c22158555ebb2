package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custodial-wallet-backend/config"
	"custodial-wallet-backend/internal/adapter/gateway/paystack"
	httpHandler "custodial-wallet-backend/internal/adapter/http/handler"
	pgStorage "custodial-wallet-backend/internal/adapter/storage/postgres"
	redisStorage "custodial-wallet-backend/internal/adapter/storage/redis"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/internal/service"
	"custodial-wallet-backend/pkg/logger"

	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Custodial Wallet Backend")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	userRepo := pgStorage.NewUserRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	auditRepo := pgStorage.NewTransactionAuditRepo(pool)
	keyRepo := pgStorage.NewAPIKeyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Paystack gateway client + webhook verifier
	gateway := paystack.NewClient(cfg.Paystack, nil, log)
	verifier := paystack.NewSignatureVerifier(cfg.Paystack.SecretKey)

	minDeposit, err := decimal.NewFromString(cfg.Wallet.MinDeposit)
	if err != nil {
		log.Fatal().Err(err).Str("min_deposit", cfg.Wallet.MinDeposit).Msg("Invalid minimum deposit")
	}

	// Initialize business services
	authSvc := service.NewAuthService(userRepo, walletRepo, tokenSvc, log)
	ledgerSvc := service.NewLedgerService(walletRepo, txRepo, auditRepo, transactor, log)
	depositSvc := service.NewDepositService(walletRepo, txRepo, auditRepo, transactor, gateway, service.DepositConfig{
		MinDeposit:  minDeposit,
		Currency:    cfg.Wallet.Currency,
		CallbackURL: cfg.Paystack.CallbackURL,
	}, log)
	apikeySvc := service.NewAPIKeyService(keyRepo, userRepo, hashSvc, transactor, log)

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:         authSvc,
		LedgerSvc:       ledgerSvc,
		DepositSvc:      depositSvc,
		APIKeySvc:       apikeySvc,
		TokenSvc:        tokenSvc,
		UserRepo:        userRepo,
		WebhookVerifier: verifier,
		RateLimitStore:  rateLimitStore,
		HealthCheckers:  []ports.HealthChecker{pgHealth, redisHealth},
		Currency:        cfg.Wallet.Currency,
		Logger:          log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
