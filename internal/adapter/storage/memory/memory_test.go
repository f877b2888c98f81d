package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/pkg/lnurlsig"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice() *domain.Device {
	now := time.Now().UTC()
	return &domain.Device{
		ID:                   uuid.New(),
		WalletID:             uuid.New(),
		Name:                 "atm",
		APIKeyID:             "5619b5e98f5a3c0b",
		APIKeyEncoding:       domain.APIKeyEncodingHex,
		FiatCurrency:         "EUR",
		ExchangeRateProvider: "fixed",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

var params = domain.WithdrawParams{MinWithdrawable: 50000, MaxWithdrawable: 50000, DefaultDescription: "ATM"}

func TestWithdrawRepo_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewWithdrawRepo(nil)
	d := newDevice()

	first, err := repo.Create(ctx, d, "secret", lnurlsig.TagWithdrawRequest, params, 1)
	require.NoError(t, err)
	assert.Equal(t, lnurlsig.DeriveHash("secret"), first.Hash)
	assert.Equal(t, 1, first.InitialUses)

	second, err := repo.Create(ctx, d, "secret", lnurlsig.TagWithdrawRequest,
		domain.WithdrawParams{MinWithdrawable: 1, MaxWithdrawable: 1}, 9)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, params, second.Params)
	assert.Equal(t, 1, second.InitialUses)
}

func TestWithdrawRepo_GetBySecret(t *testing.T) {
	ctx := context.Background()
	repo := NewWithdrawRepo(nil)

	rec, err := repo.GetBySecret(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = repo.Create(ctx, newDevice(), "secret", lnurlsig.TagWithdrawRequest, params, 2)
	require.NoError(t, err)

	rec, err = repo.GetBySecret(ctx, "secret")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.RemainingUses)
}

func TestWithdrawRepo_ConsumeOne(t *testing.T) {
	ctx := context.Background()
	repo := NewWithdrawRepo(nil)
	_, err := repo.Create(ctx, newDevice(), "secret", lnurlsig.TagWithdrawRequest, params, 2)
	require.NoError(t, err)

	for _, want := range []bool{true, true, false, false} {
		ok, err := repo.ConsumeOne(ctx, "secret")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}

	ok, err := repo.ConsumeOne(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, _ := repo.GetBySecret(ctx, "secret")
	assert.Equal(t, 0, rec.RemainingUses)
	assert.Equal(t, domain.SessionExhausted, rec.State())
}

func TestWithdrawRepo_ConsumeOne_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewWithdrawRepo(nil)
	_, err := repo.Create(ctx, newDevice(), "secret", lnurlsig.TagWithdrawRequest, params, 1)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := repo.ConsumeOne(ctx, "secret"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestWithdrawRepo_ConsumeOneTx_RollbackRestoresUse(t *testing.T) {
	ctx := context.Background()
	repo := NewWithdrawRepo(nil)
	txr := NewTransactor()
	_, err := repo.Create(ctx, newDevice(), "secret", lnurlsig.TagWithdrawRequest, params, 1)
	require.NoError(t, err)

	tx, err := txr.Begin(ctx)
	require.NoError(t, err)
	ok, err := repo.ConsumeOneTx(ctx, tx, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Rollback(ctx))

	rec, _ := repo.GetBySecret(ctx, "secret")
	assert.Equal(t, 1, rec.RemainingUses)

	tx, err = txr.Begin(ctx)
	require.NoError(t, err)
	ok, _ = repo.ConsumeOneTx(ctx, tx, "secret")
	assert.True(t, ok)
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Rollback(ctx), ErrTxDone)

	rec, _ = repo.GetBySecret(ctx, "secret")
	assert.Equal(t, 0, rec.RemainingUses)
}

func TestTransactor_Serializes(t *testing.T) {
	txr := NewTransactor()
	ctx := context.Background()

	tx, err := txr.Begin(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = txr.Begin(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Commit(ctx))
	tx2, err := txr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestWalletRepo_AdjustBalance(t *testing.T) {
	ctx := context.Background()
	repo := NewWalletRepo()
	txr := NewTransactor()
	w := &domain.Wallet{ID: uuid.New(), OwnerID: uuid.New(), BalanceMsat: 10_000}
	require.NoError(t, repo.Create(ctx, w))

	require.NoError(t, repo.AdjustBalance(ctx, nil, w.ID, -4_000))
	assert.ErrorIs(t, repo.AdjustBalance(ctx, nil, w.ID, -6_001), ErrBalanceUnderflow)
	assert.ErrorIs(t, repo.AdjustBalance(ctx, nil, uuid.New(), 1), ErrBalanceUnderflow)

	tx, err := txr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.AdjustBalance(ctx, tx, w.ID, -6_000))
	got, _ := repo.GetByIDForUpdate(ctx, tx, w.ID)
	assert.Equal(t, int64(0), got.BalanceMsat)
	require.NoError(t, tx.Rollback(ctx))

	got, _ = repo.GetByID(ctx, w.ID)
	assert.Equal(t, int64(6_000), got.BalanceMsat)
}

func TestWalletRepo_ListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewWalletRepo()
	owner := uuid.New()
	base := time.Now()

	require.NoError(t, repo.Create(ctx, &domain.Wallet{ID: uuid.New(), OwnerID: owner, Name: "b", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, &domain.Wallet{ID: uuid.New(), OwnerID: owner, Name: "a", CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &domain.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Name: "other"}))

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
}

func TestDeviceRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	devices := NewDeviceRepo()
	withdrawals := NewWithdrawRepo(devices)
	d := newDevice()

	require.NoError(t, devices.Create(ctx, d))
	assert.Error(t, devices.Create(ctx, d), "duplicate api key id")

	got, err := devices.GetByAPIKeyID(ctx, d.APIKeyID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	updated, err := devices.Update(ctx, d.ID, domain.NewDevicePatch().SetName("renamed").SetFee(0.05))
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 0.05, updated.Fee)
	assert.Equal(t, "EUR", updated.FiatCurrency)

	missing, err := devices.Update(ctx, uuid.New(), domain.NewDevicePatch().SetName("x"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, devices.UpdateSecret(ctx, d.ID, "rotated"))
	got, _ = devices.GetByID(ctx, d.ID)
	assert.Equal(t, "rotated", got.APIKeySecretEnc)

	list, _ := devices.ListByWallets(ctx, []uuid.UUID{d.WalletID})
	assert.Len(t, list, 1)

	_, err = withdrawals.Create(ctx, d, "secret", lnurlsig.TagWithdrawRequest, params, 1)
	require.NoError(t, err)

	require.NoError(t, devices.Delete(ctx, d.ID))
	got, _ = devices.GetByAPIKeyID(ctx, d.APIKeyID)
	assert.Nil(t, got)
	rec, _ := withdrawals.GetBySecret(ctx, "secret")
	assert.Nil(t, rec)
}

func TestAuditRepo_Create(t *testing.T) {
	repo := NewAuditRepo()
	require.NoError(t, repo.Create(context.Background(), &domain.AuditLog{Action: domain.AuditActionWalletTopup}))
	entries := repo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionWalletTopup, entries[0].Action)
}

func TestPaymentClaimStore(t *testing.T) {
	ctx := context.Background()
	store := NewPaymentClaimStore()

	ok, _ := store.Claim(ctx, "hash", time.Minute)
	assert.True(t, ok)
	ok, _ = store.Claim(ctx, "hash", time.Minute)
	assert.False(t, ok)

	require.NoError(t, store.Release(ctx, "hash"))
	ok, _ = store.Claim(ctx, "hash", time.Minute)
	assert.True(t, ok)

	ok, _ = store.Claim(ctx, "short", time.Millisecond)
	assert.True(t, ok)
	time.Sleep(5 * time.Millisecond)
	ok, _ = store.Claim(ctx, "short", time.Minute)
	assert.True(t, ok, "expired claims do not block")
}

func TestRateCache(t *testing.T) {
	ctx := context.Background()
	c := NewRateCache()

	_, ok, _ := c.Get(ctx, "kraken", "USD")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "Kraken", "usd", 65000, time.Minute))
	rate, ok, _ := c.Get(ctx, "kraken", "USD")
	assert.True(t, ok)
	assert.Equal(t, 65000.0, rate)
}
