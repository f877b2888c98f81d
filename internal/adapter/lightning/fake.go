package lightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

// FakeBackend settles every payment instantly unless told to fail.
// It backs the "fake" lightning backend used in development and tests.
type FakeBackend struct {
	mu       sync.Mutex
	decoder  Decoder
	failWith string
	delay    time.Duration
	payments []domain.Payment
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

func (f *FakeBackend) Name() string { return "fake" }

// FailWith makes subsequent payments fail with reason. Empty restores success.
func (f *FakeBackend) FailWith(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = reason
}

// SetDelay makes each payment block for d, or until ctx ends.
func (f *FakeBackend) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *FakeBackend) PayInvoice(ctx context.Context, bolt11 string, feeLimitMsat int64) (*domain.Payment, error) {
	inv, err := f.decoder.Decode(bolt11)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	delay, failWith := f.delay, f.failWith
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failWith != "" {
		return nil, &PaymentError{Reason: failWith}
	}

	p := domain.Payment{PaymentHash: inv.PaymentHash, Preimage: hex.EncodeToString(make([]byte, 32))}
	f.mu.Lock()
	f.payments = append(f.payments, p)
	f.mu.Unlock()
	return &p, nil
}

// Payments returns the payments made so far.
func (f *FakeBackend) Payments() []domain.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Payment(nil), f.payments...)
}

func (f *FakeBackend) Ping(ctx context.Context) error { return nil }

// FakeInvoice builds a signet invoice for amountMsat signed by a throwaway key.
// It returns the encoded request and its payment hash.
func FakeInvoice(amountMsat int64, description string, expiry time.Duration) (string, string, error) {
	if amountMsat <= 0 {
		return "", "", errors.New("amount must be positive")
	}

	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return "", "", err
	}
	paymentHash := sha256.Sum256(preimage[:])

	opts := []func(*zpay32.Invoice){
		zpay32.Amount(lnwire.MilliSatoshi(amountMsat)),
		zpay32.Description(description),
	}
	if expiry > 0 {
		opts = append(opts, zpay32.Expiry(expiry))
	}

	invoice, err := zpay32.NewInvoice(&chaincfg.SigNetParams, paymentHash, time.Now(), opts...)
	if err != nil {
		return "", "", err
	}

	encoded, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			key, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return nil, err
			}
			return ecdsa.SignCompact(key, msg, true), nil
		},
	})
	if err != nil {
		return "", "", err
	}
	return encoded, hex.EncodeToString(paymentHash[:]), nil
}
