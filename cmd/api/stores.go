package main

import (
	"context"
	"fmt"

	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/adapter/storage/memory"
	pgStorage "lnurl-atm-gateway/internal/adapter/storage/postgres"
	redisStorage "lnurl-atm-gateway/internal/adapter/storage/redis"
	"lnurl-atm-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// stores bundles the persistence adapters picked by storage.driver.
type stores struct {
	devices    ports.DeviceRepository
	records    ports.WithdrawRecordStore
	wallets    ports.WalletRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	claims     ports.PaymentClaimStore
	rateCache  ports.RateCache
	rateLimit  *redisStorage.RateLimitStore
	health     []ports.HealthChecker
	closers    []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage; all data is lost on restart")
		devices := memory.NewDeviceRepo()
		return &stores{
			devices:    devices,
			records:    memory.NewWithdrawRepo(devices),
			wallets:    memory.NewWalletRepo(),
			audit:      memory.NewAuditRepo(),
			transactor: memory.NewTransactor(),
			claims:     memory.NewPaymentClaimStore(),
			rateCache:  memory.NewRateCache(),
		}, nil
	}

	st := &stores{}

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database.MigrateURL(), log); err != nil {
			return nil, err
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	st.closers = append(st.closers, pool.Close)

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	st.closers = append(st.closers, func() { _ = rdb.Close() })

	st.devices = pgStorage.NewDeviceRepo(pool)
	st.records = pgStorage.NewWithdrawRepo(pool)
	st.wallets = pgStorage.NewWalletRepo(pool)
	st.audit = pgStorage.NewAuditRepo(pool)
	st.transactor = pgStorage.NewTransactor(pool)
	st.claims = redisStorage.NewPaymentClaimStore(rdb)
	st.rateCache = redisStorage.NewRateCache(rdb)
	st.rateLimit = redisStorage.NewRateLimitStore(rdb)
	st.health = []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)}
	return st, nil
}
