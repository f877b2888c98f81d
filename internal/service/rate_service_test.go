package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lnurl-atm-gateway/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type rateTestDeps struct {
	registry *mocks.MockExchangeRateRegistry
	provider *mocks.MockExchangeRateProvider
	shared   *mocks.MockRateCache
}

func setupRateService(t *testing.T) (*RateService, *rateTestDeps) {
	ctrl := gomock.NewController(t)
	d := &rateTestDeps{
		registry: mocks.NewMockExchangeRateRegistry(ctrl),
		provider: mocks.NewMockExchangeRateProvider(ctrl),
		shared:   mocks.NewMockRateCache(ctrl),
	}
	return NewRateService(d.registry, d.shared, time.Minute, nil, newTestLogger()), d
}

func TestRateService_ToMsat(t *testing.T) {
	svc, d := setupRateService(t)
	ctx := context.Background()

	d.registry.EXPECT().Get("fixed").Return(d.provider, true).AnyTimes()
	d.shared.EXPECT().Get(gomock.Any(), "fixed", "EUR").Return(0.0, false, nil)
	d.provider.EXPECT().FetchRate(gomock.Any(), "EUR").Return(50_000.0, nil)
	d.shared.EXPECT().Set(gomock.Any(), "fixed", "EUR", 50_000.0, time.Minute).Return(nil)

	// 10 EUR at 50k EUR/BTC = 0.0002 BTC = 20_000 sat = 20_000_000 msat.
	msat, err := svc.ToMsat(ctx, 10, "eur", "fixed", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000_000), msat)

	// Second lookup is served from the in-process cache; the fee is deducted.
	msat, err = svc.ToMsat(ctx, 10, "EUR", "fixed", 0.01)
	require.NoError(t, err)
	assert.Equal(t, int64(19_800_000), msat)
}

func TestRateService_ToMsat_FloorsFractions(t *testing.T) {
	svc, d := setupRateService(t)

	d.registry.EXPECT().Get("fixed").Return(d.provider, true)
	d.shared.EXPECT().Get(gomock.Any(), "fixed", "USD").Return(30_000.0, true, nil)

	// 1 USD at 30k = 3333.333... sat -> 3333 sat; fee floor(33.33) = 33 sat.
	msat, err := svc.ToMsat(context.Background(), 1, "USD", "fixed", 0.01)
	require.NoError(t, err)
	assert.Equal(t, int64(3_300_000), msat)
}

func TestRateService_ToMsat_WholeSats(t *testing.T) {
	svc, d := setupRateService(t)

	d.registry.EXPECT().Get("fixed").Return(d.provider, true).AnyTimes()
	d.shared.EXPECT().Get(gomock.Any(), "fixed", "EUR").Return(60_000.0, true, nil)

	tests := []struct {
		name   string
		amount float64
		fee    float64
		want   int64
	}{
		{"no fee", 5, 0, 8_333_000},
		{"with fee", 5, 0.01, 8_250_000},
		{"sub-sat amount", 0.0001, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msat, err := svc.ToMsat(context.Background(), tt.amount, "EUR", "fixed", tt.fee)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msat)
			assert.Zero(t, msat%1000)
		})
	}
}

func TestRateService_SharedCacheErrorFallsThrough(t *testing.T) {
	svc, d := setupRateService(t)

	d.registry.EXPECT().Get("kraken").Return(d.provider, true)
	d.shared.EXPECT().Get(gomock.Any(), "kraken", "EUR").Return(0.0, false, errors.New("redis down"))
	d.provider.EXPECT().FetchRate(gomock.Any(), "EUR").Return(40_000.0, nil)
	d.shared.EXPECT().Set(gomock.Any(), "kraken", "EUR", 40_000.0, time.Minute).Return(errors.New("redis down"))

	msat, err := svc.ToMsat(context.Background(), 4, "EUR", "kraken", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), msat)
}

func TestRateService_ConversionErrors(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		svc, d := setupRateService(t)
		d.registry.EXPECT().Get("nope").Return(nil, false)

		_, err := svc.ToMsat(context.Background(), 1, "EUR", "nope", 0)
		assertReason(t, err, "RATE_002", `Failed to fetch BTC/EUR currency pair from "nope"`)
	})

	t.Run("provider error", func(t *testing.T) {
		svc, d := setupRateService(t)
		d.registry.EXPECT().Get("coinbase").Return(d.provider, true)
		d.shared.EXPECT().Get(gomock.Any(), "coinbase", "CHF").Return(0.0, false, nil)
		d.provider.EXPECT().FetchRate(gomock.Any(), "CHF").Return(0.0, errors.New("503"))

		_, err := svc.ToMsat(context.Background(), 1, "chf", "coinbase", 0)
		assertReason(t, err, "RATE_002", `Failed to fetch BTC/CHF currency pair from "coinbase"`)
	})

	t.Run("non positive rate", func(t *testing.T) {
		svc, d := setupRateService(t)
		d.registry.EXPECT().Get("coinbase").Return(d.provider, true)
		d.shared.EXPECT().Get(gomock.Any(), "coinbase", "EUR").Return(0.0, false, nil)
		d.provider.EXPECT().FetchRate(gomock.Any(), "EUR").Return(0.0, nil)

		err := svc.CheckPair(context.Background(), "EUR", "coinbase")
		assertReason(t, err, "RATE_002", "")
	})
}

func TestRateService_WithoutSharedCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockExchangeRateRegistry(ctrl)
	provider := mocks.NewMockExchangeRateProvider(ctrl)
	svc := NewRateService(registry, nil, time.Minute, nil, newTestLogger())

	registry.EXPECT().Get("fixed").Return(provider, true).Times(2)
	provider.EXPECT().FetchRate(gomock.Any(), "EUR").Return(25_000.0, nil).Times(1)

	require.NoError(t, svc.CheckPair(context.Background(), "EUR", "fixed"))
	require.NoError(t, svc.CheckPair(context.Background(), "EUR", "fixed"))
}

func TestRateService_Providers(t *testing.T) {
	svc, d := setupRateService(t)
	d.registry.EXPECT().Names().Return([]string{"bitstamp", "coinbase"})

	assert.Equal(t, []string{"bitstamp", "coinbase"}, svc.Providers())
}
