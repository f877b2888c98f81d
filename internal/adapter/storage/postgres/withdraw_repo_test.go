package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/pkg/lnurlsig"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "31833535e5d2c4b8d1b51e8a0a6ab1e2f1d9d9e1b53d7f8e3c2a7b4c9d0ec84f"

func withdrawRows(recs ...*domain.WithdrawRecord) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "device_id", "api_key_id", "wallet_id", "hash", "tag", "params",
		"initial_uses", "remaining_uses", "created_at", "updated_at",
	})
	for _, r := range recs {
		params, _ := json.Marshal(r.Params)
		rows.AddRow(r.ID, r.DeviceID, r.APIKeyID, r.WalletID, r.Hash, r.Tag, params,
			r.InitialUses, r.RemainingUses, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

func newTestRecord(d *domain.Device, remaining int) *domain.WithdrawRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.WithdrawRecord{
		ID:            uuid.New(),
		DeviceID:      d.ID,
		APIKeyID:      d.APIKeyID,
		WalletID:      d.WalletID,
		Hash:          lnurlsig.DeriveHash(testSecret),
		Tag:           lnurlsig.TagWithdrawRequest,
		Params:        domain.WithdrawParams{MinWithdrawable: 50000, MaxWithdrawable: 50000, DefaultDescription: "ATM"},
		InitialUses:   1,
		RemainingUses: remaining,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestWithdrawRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawRepo(mock)
	d := newTestDevice()
	rec := newTestRecord(d, 1)

	mock.ExpectExec("INSERT INTO withdraw_records .+ ON CONFLICT \\(hash\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), d.ID, d.APIKeyID, d.WalletID, rec.Hash, rec.Tag,
			pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM withdraw_records WHERE hash").
		WithArgs(rec.Hash).
		WillReturnRows(withdrawRows(rec))

	result, err := repo.Create(context.Background(), d, testSecret, rec.Tag, rec.Params, 1)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, result.ID)
	assert.Equal(t, rec.Params, result.Params)
	assert.Equal(t, 1, result.RemainingUses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawRepo_Create_ExistingHashReturnsStoredRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawRepo(mock)
	d := newTestDevice()
	stored := newTestRecord(d, 0)

	mock.ExpectExec("INSERT INTO withdraw_records").
		WithArgs(pgxmock.AnyArg(), d.ID, d.APIKeyID, d.WalletID, stored.Hash, stored.Tag,
			pgxmock.AnyArg(), 5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM withdraw_records WHERE hash").
		WithArgs(stored.Hash).
		WillReturnRows(withdrawRows(stored))

	result, err := repo.Create(context.Background(), d, testSecret, stored.Tag,
		domain.WithdrawParams{MinWithdrawable: 1, MaxWithdrawable: 2}, 5)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, result.ID)
	assert.Equal(t, 0, result.RemainingUses)
	assert.Equal(t, int64(50000), result.Params.MaxWithdrawable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawRepo_GetBySecret_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWithdrawRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM withdraw_records WHERE hash").
		WithArgs(lnurlsig.DeriveHash("nope")).
		WillReturnRows(withdrawRows())

	result, err := repo.GetBySecret(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestWithdrawRepo_ConsumeOne(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"use available", 1, true},
		{"exhausted", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec("UPDATE withdraw_records .+ WHERE hash = \\$1 AND remaining_uses > 0").
				WithArgs(lnurlsig.DeriveHash(testSecret)).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			ok, err := NewWithdrawRepo(mock).ConsumeOne(context.Background(), testSecret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWithdrawRepo_ConsumeOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE withdraw_records").
		WithArgs(lnurlsig.DeriveHash(testSecret)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := NewWithdrawRepo(mock).ConsumeOneTx(context.Background(), tx, testSecret)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawRepo_ConsumeOne_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE withdraw_records").
		WithArgs(lnurlsig.DeriveHash(testSecret)).
		WillReturnError(errors.New("connection reset"))

	ok, err := NewWithdrawRepo(mock).ConsumeOne(context.Background(), testSecret)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestWithdrawRepo_ListByDevice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := newTestDevice()
	rec := newTestRecord(d, 1)

	mock.ExpectQuery("SELECT .+ FROM withdraw_records\\s+WHERE device_id").
		WithArgs(d.ID).
		WillReturnRows(withdrawRows(rec))

	result, err := NewWithdrawRepo(mock).ListByDevice(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, domain.SessionIssued, result[0].State())
	assert.NoError(t, mock.ExpectationsWereMet())
}
