package handler

import (
	"net/http"

	"retail-ledger/internal/adapter/http/middleware"
	redisStore "retail-ledger/internal/adapter/storage/redis"
	"retail-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	TokenSvc       ports.TokenService
	AccountSvc     ports.AccountService
	LedgerSvc      ports.LedgerService
	BillSvc        ports.BillService
	TxRunner       ports.TxRunner
	Jobs           JobTrigger                 // nil = manual job triggers disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService      // nil = audit logging disabled
	Notifications  ports.NotificationInbox // nil = /notifications not served
	Metrics        http.Handler            // nil = /metrics not served
	Docs           *DocsHandler            // nil = /docs not served
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
// The gin mode is set by the caller.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	if deps.Docs != nil {
		r.GET("/docs", deps.Docs.UI)
		r.GET("/docs/openapi.yaml", deps.Docs.OpenAPI)
	}

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

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	accountHandler := NewAccountHandler(deps.TxRunner, deps.AccountSvc)
	ledgerHandler := NewLedgerHandler(deps.TxRunner, deps.LedgerSvc, deps.Logger)
	billHandler := NewBillHandler(deps.BillSvc)

	accounts := v1.Group("/accounts", jwtAuth)
	{
		accounts.GET("", rl("read"), accountHandler.ListAccounts)
		accounts.POST("", rl("write"), accountHandler.OpenAccount)
		accounts.GET("/:id", rl("read"), accountHandler.GetAccount)
		accounts.POST("/:id/close", rl("write"), accountHandler.CloseAccount)
		accounts.GET("/:id/transactions", rl("read"), accountHandler.ListTransactions)
		accounts.POST("/:id/deposit", rl("money"), ledgerHandler.Deposit)
		accounts.POST("/:id/withdraw", rl("money"), ledgerHandler.Withdraw)
	}

	v1.POST("/transfers", jwtAuth, rl("money"), ledgerHandler.Transfer)

	bills := v1.Group("/bills", jwtAuth)
	{
		bills.GET("", rl("read"), billHandler.ListBills)
		bills.POST("", rl("write"), billHandler.CreateBill)
		bills.POST("/:id/pay", rl("money"), ledgerHandler.PayBill)
	}

	if deps.Notifications != nil {
		v1.GET("/notifications", jwtAuth, rl("read"), NewNotificationHandler(deps.Notifications).ListNotifications)
	}

	// --- Staff routes ---
	admin := v1.Group("/admin", jwtAuth, middleware.RequireStaff())
	{
		admin.POST("/accounts/:id/transactions", rl("admin"), ledgerHandler.AddTransaction)
		admin.POST("/users/:id/unlock", rl("admin"), authHandler.UnlockUser)
		if deps.Jobs != nil {
			admin.POST("/jobs/:job", rl("admin"), NewJobHandler(deps.Jobs).RunJob)
		}
	}

	return r
}
