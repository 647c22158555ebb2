package handler

import (
	"custodial-wallet-backend/internal/adapter/http/middleware"
	redisStore "custodial-wallet-backend/internal/adapter/storage/redis"
	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc         ports.AuthService
	LedgerSvc       ports.LedgerService
	DepositSvc      ports.DepositService
	APIKeySvc       ports.APIKeyService
	TokenSvc        ports.TokenService
	UserRepo        ports.UserRepository
	WebhookVerifier ports.WebhookVerifier
	RateLimitStore  *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers  []ports.HealthChecker
	Currency        string
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", rl("auth"), authHandler.Login)
	}

	walletHandler := NewWalletHandler(
		deps.LedgerSvc, deps.DepositSvc, deps.UserRepo,
		deps.WebhookVerifier, deps.Currency, deps.Logger,
	)

	// Webhook is authenticated by its HMAC signature, not a session.
	v1.POST("/wallet/paystack/webhook", rl("webhook"), walletHandler.Webhook)

	// --- Authenticated routes (JWT or API key) ---
	authn := middleware.Auth(deps.TokenSvc, deps.APIKeySvc, deps.Logger)
	writePerm := middleware.RequirePermission(domain.PermissionWalletWrite)

	wallet := v1.Group("/wallet", authn)
	{
		wallet.GET("/balance", rl("wallet_read"), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("wallet_read"), walletHandler.History)
		wallet.GET("/deposit/verify/:reference", rl("wallet_read"), walletHandler.VerifyDeposit)
		wallet.POST("/transfer", rl("wallet_write"), writePerm, walletHandler.Transfer)
		wallet.POST("/deposit", rl("wallet_write"), writePerm, walletHandler.Deposit)
	}

	// --- Key management (JWT sessions only) ---
	apikeyHandler := NewAPIKeyHandler(deps.APIKeySvc)
	keys := v1.Group("/keys", authn, middleware.RequireJWT())
	{
		keys.GET("", rl("keys"), apikeyHandler.List)
		keys.POST("/create", rl("keys"), apikeyHandler.Create)
		keys.POST("/rollover", rl("keys"), apikeyHandler.Rollover)
		keys.POST("/:id/revoke", rl("keys"), apikeyHandler.Revoke)
	}

	return r
}
