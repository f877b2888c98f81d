package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/adapter/http/middleware"
	redisStore "lnurl-atm-gateway/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitStore(t *testing.T) *redisStore.RateLimitStore {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisStore.NewRateLimitStore(client)
}

func setupRateLimitRouter(store middleware.RateLimitStore, lnurl bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
	withOperator := func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Operator"); id != "" {
			c.Set(middleware.CtxOperatorID, uuid.MustParse(id))
		}
	}

	r.GET("/test", withOperator, middleware.RateLimiter(store, "test", rule, lnurl, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router := setupRateLimitRouter(newRateLimitStore(t), false)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router := setupRateLimitRouter(newRateLimitStore(t), false)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_LNURLBodyOverLimit(t *testing.T) {
	router := setupRateLimitRouter(newRateLimitStore(t), true)

	var w *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		w = httptest.NewRecorder()
		req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, 200, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ERROR", body["status"])
	assert.NotEmpty(t, body["reason"])
}

func TestRateLimiter_CountsPerOperator(t *testing.T) {
	router := setupRateLimitRouter(newRateLimitStore(t), false)
	operatorA, operatorB := uuid.NewString(), uuid.NewString()

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
		req.Header.Set("X-Test-Operator", operatorA)
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
	req.Header.Set("X-Test-Operator", operatorB)
	router.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, int64, time.Duration) (*redisStore.RateLimitResult, error) {
	return nil, assert.AnError
}

func TestRateLimiter_DegradesOpen(t *testing.T) {
	router := setupRateLimitRouter(brokenStore{}, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}

func TestRateLimitRules(t *testing.T) {
	rules := middleware.RateLimitRules(config.RateLimitConfig{})
	assert.Equal(t, int64(30), rules["withdraw"].Limit)
	assert.Equal(t, int64(120), rules["admin"].Limit)
	assert.Equal(t, int64(20), rules["topup"].Limit)

	rules = middleware.RateLimitRules(config.RateLimitConfig{WithdrawPerMinute: 5, AdminPerMinute: 7})
	assert.Equal(t, int64(5), rules["withdraw"].Limit)
	assert.Equal(t, int64(7), rules["admin"].Limit)
	assert.Equal(t, time.Minute, rules["admin"].Window)
}
