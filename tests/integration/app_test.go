package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/adapter/exchange"
	httpHandler "lnurl-atm-gateway/internal/adapter/http/handler"
	"lnurl-atm-gateway/internal/adapter/lightning"
	"lnurl-atm-gateway/internal/adapter/storage/memory"
	redisStorage "lnurl-atm-gateway/internal/adapter/storage/redis"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/internal/service"
	"lnurl-atm-gateway/internal/telemetry"
	"lnurl-atm-gateway/pkg/lnurlsig"
	"lnurl-atm-gateway/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

// testApp runs the real HTTP stack on memory repositories, with claims, rate
// cache and rate limiting in miniredis and payments on the fake backend.
type testApp struct {
	server     *httptest.Server
	redis      *miniredis.Miniredis
	lightning  *lightning.FakeBackend
	operatorID uuid.UUID
	token      string
}

const (
	testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	// EUR per BTC served by the fixed provider.
	testRate = 50000.0
)

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	log := logger.New("error", false)
	meter := noop.NewMeterProvider().Meter("integration")

	encSvc, err := service.NewAESEncryptionService(testAESKey)
	require.NoError(t, err)
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")

	devices := memory.NewDeviceRepo()
	records := memory.NewWithdrawRepo(devices)
	wallets := memory.NewWalletRepo()
	transactor := memory.NewTransactor()
	backend := lightning.NewFakeBackend()

	rateMetrics, err := telemetry.NewRateMetrics(meter)
	require.NoError(t, err)
	withdrawMetrics, err := telemetry.NewWithdrawMetrics(meter)
	require.NoError(t, err)

	registry := exchange.NewRegistry()
	registry.Register(exchange.NewFixed(testRate))
	rateSvc := service.NewRateService(registry, redisStorage.NewRateCache(rdb), time.Minute, rateMetrics, log)

	withdrawSvc := service.NewWithdrawService(service.WithdrawDeps{
		Devices:    devices,
		Records:    records,
		Wallets:    wallets,
		Transactor: transactor,
		Rates:      rateSvc,
		Claims:     redisStorage.NewPaymentClaimStore(rdb),
		Decoder:    lightning.NewDecoder(),
		Backend:    backend,
		Signer:     service.NewLNURLSignatureService(),
		Cipher:     encSvc,
		Lightning: config.LightningConfig{
			PaymentTimeout:    5 * time.Second,
			FeeReserveMinMsat: 2000,
			FeeReservePercent: 1,
		},
		Withdraw: config.WithdrawConfig{MaxUses: 10, ClaimTTL: time.Minute},
		Metrics:  withdrawMetrics,
		Log:      log,
	})

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WithdrawSvc:    withdrawSvc,
		DeviceSvc:      service.NewDeviceService(devices, wallets, records, rateSvc, encSvc, log),
		WalletSvc:      service.NewWalletService(wallets, transactor, log),
		Rates:          rateSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		RateLimits:     config.RateLimitConfig{WithdrawPerMinute: 1000, AdminPerMinute: 1000},
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb), backend},
		AuditSvc:       service.NewAuditService(memory.NewAuditRepo(), log),
		Logger:         log,
	})

	operatorID := uuid.New()
	token, _, err := tokenSvc.Generate(operatorID)
	require.NoError(t, err)

	app := &testApp{
		server:     httptest.NewServer(router),
		redis:      mr,
		lightning:  backend,
		operatorID: operatorID,
		token:      token,
	}
	t.Cleanup(app.close)
	return app
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// --- admin API helpers ---

func (a *testApp) admin(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+"/api/v1"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decodeData(t *testing.T, raw []byte, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

type walletView struct {
	ID          string `json:"id"`
	BalanceMsat int64  `json:"balance_msat"`
}

type deviceCredentials struct {
	ID           string `json:"id"`
	APIKeyID     string `json:"api_key_id"`
	APIKeySecret string `json:"api_key_secret"`
}

type withdrawalView struct {
	RemainingUses int    `json:"remaining_uses"`
	State         string `json:"state"`
}

func (a *testApp) fundedWallet(t *testing.T, balanceMsat int64) string {
	t.Helper()
	status, raw := a.admin(t, http.MethodPost, "/wallets", map[string]any{"name": "ATM float"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var w walletView
	decodeData(t, raw, &w)

	if balanceMsat > 0 {
		status, raw = a.admin(t, http.MethodPost, "/wallets/"+w.ID+"/topup", map[string]any{"amount_msat": balanceMsat})
		require.Equal(t, http.StatusOK, status, string(raw))
	}
	return w.ID
}

func (a *testApp) balance(t *testing.T, walletID string) int64 {
	t.Helper()
	status, raw := a.admin(t, http.MethodGet, "/wallets/"+walletID, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var w walletView
	decodeData(t, raw, &w)
	return w.BalanceMsat
}

func (a *testApp) registerDevice(t *testing.T, walletID string, fee float64) deviceCredentials {
	t.Helper()
	status, raw := a.admin(t, http.MethodPost, "/devices", map[string]any{
		"name":                   "Lobby ATM",
		"wallet_id":              walletID,
		"fiat_currency":          "EUR",
		"exchange_rate_provider": "fixed",
		"fee":                    fee,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var creds deviceCredentials
	decodeData(t, raw, &creds)
	require.NotEmpty(t, creds.APIKeySecret)
	return creds
}

func (a *testApp) withdrawals(t *testing.T, deviceID string) []withdrawalView {
	t.Helper()
	status, raw := a.admin(t, http.MethodGet, "/devices/"+deviceID+"/withdrawals", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var out []withdrawalView
	decodeData(t, raw, &out)
	return out
}

// --- LNURL helpers ---

type lnurlReply struct {
	Status          string `json:"status"`
	Reason          string `json:"reason"`
	Tag             string `json:"tag"`
	Callback        string `json:"callback"`
	K1              string `json:"k1"`
	MinWithdrawable int64  `json:"minWithdrawable"`
	MaxWithdrawable int64  `json:"maxWithdrawable"`
}

// signedQuery builds a withdrawRequest signed the way device firmware does.
func signedQuery(t *testing.T, creds deviceCredentials, nonce string, minAmount, maxAmount float64, extra map[string]string) url.Values {
	t.Helper()
	query := map[string]string{
		"id":                 creds.APIKeyID,
		"nonce":              nonce,
		"tag":                lnurlsig.TagWithdrawRequest,
		"minWithdrawable":    strconv.FormatFloat(minAmount, 'f', -1, 64),
		"maxWithdrawable":    strconv.FormatFloat(maxAmount, 'f', -1, 64),
		"defaultDescription": "ATM withdrawal",
	}
	for k, v := range extra {
		query[k] = v
	}
	sig, err := lnurlsig.Sign(query, creds.APIKeySecret, lnurlsig.EncodingHex)
	require.NoError(t, err)
	query[lnurlsig.SignatureKey] = sig

	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}
	return values
}

func (a *testApp) lnurl(t *testing.T, rawURL string) lnurlReply {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply lnurlReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func (a *testApp) info(t *testing.T, query url.Values) lnurlReply {
	t.Helper()
	return a.lnurl(t, a.server.URL+"/u?"+query.Encode())
}

func (a *testApp) redeem(t *testing.T, callback, k1 string, amountMsat int64) lnurlReply {
	t.Helper()
	invoice, _, err := lightning.FakeInvoice(amountMsat, "withdraw", time.Hour)
	require.NoError(t, err)
	return a.redeemInvoice(t, callback, k1, invoice)
}

func (a *testApp) redeemInvoice(t *testing.T, callback, k1, invoice string) lnurlReply {
	t.Helper()
	values := url.Values{"k1": {k1}, "pr": {invoice}}
	return a.lnurl(t, fmt.Sprintf("%s?%s", callback, values.Encode()))
}
