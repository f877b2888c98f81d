package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/internal/telemetry"
	"lnurl-atm-gateway/pkg/apperror"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	satsPerBTC = 100_000_000
	msatPerSat = 1000
)

var errNonPositiveRate = errors.New("provider returned a non-positive rate")

// RateService converts fiat amounts into msat through a provider registry.
// Rates are cached in process (L1) and in the shared cache (L2).
type RateService struct {
	registry ports.ExchangeRateRegistry
	shared   ports.RateCache
	local    *gocache.Cache
	ttl      time.Duration
	metrics  *telemetry.RateMetrics
	log      zerolog.Logger
}

// NewRateService creates a RateService. shared and metrics may be nil.
func NewRateService(registry ports.ExchangeRateRegistry, shared ports.RateCache, ttl time.Duration,
	metrics *telemetry.RateMetrics, log zerolog.Logger) *RateService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RateService{
		registry: registry,
		shared:   shared,
		local:    gocache.New(ttl, 2*ttl),
		ttl:      ttl,
		metrics:  metrics,
		log:      log,
	}
}

// ToMsat prices amount of currency in msat and deducts the device fee.
func (s *RateService) ToMsat(ctx context.Context, amount float64, currency, provider string, fee float64) (int64, error) {
	currency = strings.ToUpper(currency)
	rate, err := s.rate(ctx, currency, provider)
	if err != nil {
		return 0, apperror.ErrConversion(currency, provider, err)
	}

	// Whole sats only: wallets build sat-denominated invoices.
	sats := math.Floor(amount * satsPerBTC / rate)
	net := sats - math.Floor(sats*fee)
	return int64(net) * msatPerSat, nil
}

// CheckPair verifies that provider can price currency.
func (s *RateService) CheckPair(ctx context.Context, currency, provider string) error {
	currency = strings.ToUpper(currency)
	if _, err := s.rate(ctx, currency, provider); err != nil {
		return apperror.ErrConversion(currency, provider, err)
	}
	return nil
}

// Providers lists the registered provider ids.
func (s *RateService) Providers() []string {
	return s.registry.Names()
}

func (s *RateService) rate(ctx context.Context, currency, provider string) (float64, error) {
	p, ok := s.registry.Get(provider)
	if !ok {
		return 0, fmt.Errorf("unknown exchange rate provider %q", provider)
	}

	key := provider + ":" + currency
	if v, ok := s.local.Get(key); ok {
		s.metrics.RecordLookup(ctx, provider, "l1")
		return v.(float64), nil
	}

	if s.shared != nil {
		rate, hit, err := s.shared.Get(ctx, provider, currency)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", provider).Msg("shared rate cache read failed")
		}
		if hit && rate > 0 {
			s.local.Set(key, rate, gocache.DefaultExpiration)
			s.metrics.RecordLookup(ctx, provider, "l2")
			return rate, nil
		}
	}

	rate, err := p.FetchRate(ctx, currency)
	if err != nil {
		return 0, err
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, errNonPositiveRate
	}
	s.metrics.RecordLookup(ctx, provider, "provider")

	s.local.Set(key, rate, gocache.DefaultExpiration)
	if s.shared != nil {
		if err := s.shared.Set(ctx, provider, currency, rate, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("provider", provider).Msg("shared rate cache write failed")
		}
	}
	return rate, nil
}
