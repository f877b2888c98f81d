package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lnurl-atm-gateway/internal/adapter/resilience"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *resilience.Client {
	cfg := resilience.DefaultClientConfig("test")
	cfg.MaxRetries = 0
	cfg.InitialInterval = time.Millisecond
	return resilience.NewClient(cfg, nil, zerolog.Nop())
}

func serve(t *testing.T, wantPath, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantPath, r.URL.RequestURI())
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviders_FetchRate(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func(string, *resilience.Client) *HTTPProvider
		path    string
		body    string
		want    float64
		wantErr bool
	}{
		{
			name:  "coinbase",
			newFn: NewCoinbase,
			path:  "/v2/exchange-rates?currency=BTC",
			body:  `{"data":{"currency":"BTC","rates":{"EUR":"61000.25","USD":"66000"}}}`,
			want:  61000.25,
		},
		{
			name:    "coinbase missing currency",
			newFn:   NewCoinbase,
			path:    "/v2/exchange-rates?currency=BTC",
			body:    `{"data":{"currency":"BTC","rates":{"USD":"66000"}}}`,
			wantErr: true,
		},
		{
			name:  "bitstamp",
			newFn: NewBitstamp,
			path:  "/api/v2/ticker/btceur/",
			body:  `{"last":"60999.0","volume":"12"}`,
			want:  60999,
		},
		{
			name:  "kraken",
			newFn: NewKraken,
			path:  "/0/public/Ticker?pair=XBTEUR",
			body:  `{"error":[],"result":{"XXBTZEUR":{"c":["61001.1","0.002"]}}}`,
			want:  61001.1,
		},
		{
			name:    "kraken error",
			newFn:   NewKraken,
			path:    "/0/public/Ticker?pair=XBTEUR",
			body:    `{"error":["EQuery:Unknown asset pair"],"result":{}}`,
			wantErr: true,
		},
		{
			name:  "bitfinex",
			newFn: NewBitfinex,
			path:  "/v2/ticker/tBTCEUR",
			body:  `[60990,1.2,61000,0.8,-10,-0.0002,60995.5,123.4,61500,60000]`,
			want:  60995.5,
		},
		{
			name:    "bitfinex short array",
			newFn:   NewBitfinex,
			path:    "/v2/ticker/tBTCEUR",
			body:    `["error",10020,"symbol: invalid"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.path, tt.body)
			p := tt.newFn(srv.URL, testClient())

			rate, err := p.FetchRate(context.Background(), "eur")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rate)
		})
	}
}

func TestProvider_NonPositiveRate(t *testing.T) {
	srv := serve(t, "/api/v2/ticker/btceur/", `{"last":"0"}`)
	_, err := NewBitstamp(srv.URL, testClient()).FetchRate(context.Background(), "EUR")
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestFixedProvider(t *testing.T) {
	rate, err := NewFixed(1e8).FetchRate(context.Background(), "ANY")
	require.NoError(t, err)
	assert.Equal(t, 1e8, rate)

	_, err = NewFixed(0).FetchRate(context.Background(), "EUR")
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(time.Second, 0, 50000, zerolog.Nop())
	assert.Equal(t, []string{"bitfinex", "bitstamp", "coinbase", "fixed", "kraken"}, r.Names())

	p, ok := r.Get("fixed")
	require.True(t, ok)
	assert.Equal(t, "fixed", p.Name())

	_, ok = r.Get("binance")
	assert.False(t, ok)

	assert.NotContains(t, DefaultRegistry(time.Second, 0, 0, zerolog.Nop()).Names(), "fixed")
}
