package memory

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// PaymentClaimStore implements ports.PaymentClaimStore in process memory.
// cache.Add fails when the key is present, which makes Claim a test-and-set.
type PaymentClaimStore struct {
	claims *cache.Cache
}

func NewPaymentClaimStore() *PaymentClaimStore {
	return &PaymentClaimStore{claims: cache.New(5*time.Minute, 10*time.Minute)}
}

func (s *PaymentClaimStore) Claim(ctx context.Context, paymentHash string, ttl time.Duration) (bool, error) {
	return s.claims.Add(paymentHash, struct{}{}, ttl) == nil, nil
}

func (s *PaymentClaimStore) Release(ctx context.Context, paymentHash string) error {
	s.claims.Delete(paymentHash)
	return nil
}

// RateCache implements ports.RateCache in process memory.
type RateCache struct {
	rates *cache.Cache
}

func NewRateCache() *RateCache {
	return &RateCache{rates: cache.New(time.Minute, 10*time.Minute)}
}

func rateKey(provider, currency string) string {
	return strings.ToLower(provider) + ":" + strings.ToUpper(currency)
}

func (c *RateCache) Get(ctx context.Context, provider, currency string) (float64, bool, error) {
	v, ok := c.rates.Get(rateKey(provider, currency))
	if !ok {
		return 0, false, nil
	}
	return v.(float64), true, nil
}

func (c *RateCache) Set(ctx context.Context, provider, currency string, rate float64, ttl time.Duration) error {
	c.rates.Set(rateKey(provider, currency), rate, ttl)
	return nil
}
