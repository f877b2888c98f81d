package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PaymentClaimStore implements ports.PaymentClaimStore. A claim marks a
// payment hash as in flight so the same invoice cannot be paid twice from
// two sessions at once.
type PaymentClaimStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewPaymentClaimStore(client goredis.UniversalClient) *PaymentClaimStore {
	return &PaymentClaimStore{
		client: client,
		prefix: "lnurl:claim:",
	}
}

// Claim takes the hash with SET NX. It reports false when someone else holds it.
func (s *PaymentClaimStore) Claim(ctx context.Context, paymentHash string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, s.prefix+paymentHash, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis payment claim: %w", err)
	}
	return result == "OK", nil
}

// Release drops a claim after a failed payment so the invoice may be retried.
func (s *PaymentClaimStore) Release(ctx context.Context, paymentHash string) error {
	if err := s.client.Del(ctx, s.prefix+paymentHash).Err(); err != nil {
		return fmt.Errorf("redis payment release: %w", err)
	}
	return nil
}
