package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lnurl-atm-gateway/api"
	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/adapter/exchange"
	httpHandler "lnurl-atm-gateway/internal/adapter/http/handler"
	"lnurl-atm-gateway/internal/adapter/http/middleware"
	"lnurl-atm-gateway/internal/adapter/lightning"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/internal/service"
	"lnurl-atm-gateway/internal/telemetry"
	"lnurl-atm-gateway/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var version = "dev"

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ATMGW_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}

	log.Info().
		Str("version", version).
		Str("storage", cfg.Storage.Driver).
		Str("lightning", cfg.Lightning.Backend).
		Int("port", cfg.Server.Port).
		Msg("Starting LNURL ATM gateway")

	ctx := context.Background()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer st.Close()

	backend, err := openBackend(cfg.Lightning, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize lightning backend")
	}
	if checker, ok := backend.(ports.HealthChecker); ok {
		st.health = append(st.health, checker)
	}

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	rateMetrics, err := telemetry.NewRateMetrics(tel.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rate metrics")
	}
	withdrawMetrics, err := telemetry.NewWithdrawMetrics(tel.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create withdraw metrics")
	}
	httpMetrics, err := middleware.NewHTTPMetrics(tel.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HTTP metrics")
	}

	registry := exchange.DefaultRegistry(cfg.Rates.Timeout, cfg.Rates.MaxRetries, cfg.Rates.FixedRate, logger.Component(log, "rates"))
	rateSvc := service.NewRateService(registry, st.rateCache, cfg.Rates.CacheTTL, rateMetrics, logger.Component(log, "rates"))

	withdrawSvc := service.NewWithdrawService(service.WithdrawDeps{
		Devices:    st.devices,
		Records:    st.records,
		Wallets:    st.wallets,
		Transactor: st.transactor,
		Rates:      rateSvc,
		Claims:     st.claims,
		Decoder:    lightning.NewDecoder(),
		Backend:    backend,
		Signer:     service.NewLNURLSignatureService(),
		Cipher:     encSvc,
		Lightning:  cfg.Lightning,
		Withdraw:   cfg.Withdraw,
		Tracer:     tel.Tracer,
		Metrics:    withdrawMetrics,
		Log:        logger.Component(log, "withdraw"),
	})
	deviceSvc := service.NewDeviceService(st.devices, st.wallets, st.records, rateSvc, encSvc, logger.Component(log, "devices"))
	walletSvc := service.NewWalletService(st.wallets, st.transactor, logger.Component(log, "wallets"))
	auditSvc := service.NewAuditService(st.audit, logger.Component(log, "audit"))

	deps := httpHandler.RouterDeps{
		WithdrawSvc:    withdrawSvc,
		DeviceSvc:      deviceSvc,
		WalletSvc:      walletSvc,
		Rates:          rateSvc,
		TokenSvc:       tokenSvc,
		RateLimits:     cfg.RateLimit,
		HealthCheckers: st.health,
		AuditSvc:       auditSvc,
		HTTPMetrics:    httpMetrics,
		Tracer:         tel.Tracer,
		OpenAPISpec:    api.OpenAPI,
		PublicURL:      cfg.Server.PublicURL,
		Logger:         log,
	}
	if st.rateLimit != nil {
		deps.RateLimitStore = st.rateLimit
	}
	router := httpHandler.SetupRouter(deps)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// In-flight payments keep their own timeout, so allow for it here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Lightning.PaymentTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	log.Info().Msg("Server exited")
}

func openBackend(cfg config.LightningConfig, log zerolog.Logger) (ports.LightningBackend, error) {
	if cfg.Backend == "lnd" {
		lnd, err := lightning.DialLND(cfg, logger.Component(log, "lnd"))
		if err != nil {
			return nil, err
		}
		return lnd, nil
	}
	log.Warn().Msg("Using the fake lightning backend; payments are not real")
	return lightning.NewFakeBackend(), nil
}
