package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateCache implements ports.RateCache. It is the shared second-level cache
// for BTC exchange rates so that several gateway nodes hit each provider once.
type RateCache struct {
	client goredis.UniversalClient
	prefix string
}

func NewRateCache(client goredis.UniversalClient) *RateCache {
	return &RateCache{
		client: client,
		prefix: "lnurl:rate:",
	}
}

func (c *RateCache) key(provider, currency string) string {
	return c.prefix + strings.ToLower(provider) + ":" + strings.ToUpper(currency)
}

// Get returns the cached fiat-per-BTC rate. ok is false on a miss.
func (c *RateCache) Get(ctx context.Context, provider, currency string) (float64, bool, error) {
	rate, err := c.client.Get(ctx, c.key(provider, currency)).Float64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis rate get: %w", err)
	}
	return rate, true, nil
}

func (c *RateCache) Set(ctx context.Context, provider, currency string, rate float64, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(provider, currency), rate, ttl).Err(); err != nil {
		return fmt.Errorf("redis rate set: %w", err)
	}
	return nil
}
