package handler

import (
	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/adapter/http/middleware"
	"lnurl-atm-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WithdrawSvc    ports.WithdrawService
	DeviceSvc      ports.DeviceService
	WalletSvc      ports.WalletService
	Rates          ports.RateConverter
	TokenSvc       ports.TokenService
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	RateLimits     config.RateLimitConfig
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService       // nil = audit logging disabled
	HTTPMetrics    *middleware.HTTPMetrics  // nil = no HTTP metrics
	Tracer         trace.Tracer             // nil = no request spans
	OpenAPISpec    []byte
	PublicURL      string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Tracer != nil {
		r.Use(middleware.Tracing(deps.Tracer))
	}
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Middleware())
	}
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec(deps.OpenAPISpec))
	}

	rules := middleware.RateLimitRules(deps.RateLimits)
	rl := func(group string, lnurl bool) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, lnurl, deps.Logger)
	}

	// --- LNURL callback (public, signed by the device or keyed by k1) ---
	withdrawHandler := NewWithdrawHandler(deps.WithdrawSvc, deps.PublicURL)
	r.GET("/withdraw", rl("withdraw", true), withdrawHandler.Withdraw)
	r.GET("/u", rl("withdraw", true), withdrawHandler.Withdraw)

	// --- Operator API (JWT) ---
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger), rl("admin", false))

	deviceHandler := NewDeviceHandler(deps.DeviceSvc, deps.PublicURL)
	devices := v1.Group("/devices")
	{
		devices.POST("", deviceHandler.Create)
		devices.GET("", deviceHandler.List)
		devices.GET("/by-key/:api_key_id", deviceHandler.GetByAPIKey)
		devices.GET("/:id", deviceHandler.Get)
		devices.PUT("/:id", deviceHandler.Update)
		devices.DELETE("/:id", deviceHandler.Delete)
		devices.POST("/:id/rotate-key", deviceHandler.RotateKey)
		devices.GET("/:id/config", deviceHandler.ExportConfig)
		devices.GET("/:id/withdrawals", deviceHandler.ListWithdrawals)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", walletHandler.Create)
		wallets.GET("", walletHandler.List)
		wallets.GET("/:id", walletHandler.Get)
		wallets.POST("/:id/topup", rl("topup", false), walletHandler.Topup)
	}

	v1.GET("/exchange-rates/providers", ListRateProviders(deps.Rates))

	return r
}
