package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/pkg/lnurlsig"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const withdrawColumns = `id, device_id, api_key_id, wallet_id, hash, tag, params,
	initial_uses, remaining_uses, created_at, updated_at`

// WithdrawRepo implements ports.WithdrawRecordStore. Sessions are addressed
// only by the SHA-256 of their secret.
type WithdrawRepo struct {
	pool Pool
}

// NewWithdrawRepo creates a new WithdrawRepo.
func NewWithdrawRepo(pool Pool) *WithdrawRepo {
	return &WithdrawRepo{pool: pool}
}

func scanWithdraw(row pgx.Row) (*domain.WithdrawRecord, error) {
	rec := &domain.WithdrawRecord{}
	var params []byte
	err := row.Scan(
		&rec.ID, &rec.DeviceID, &rec.APIKeyID, &rec.WalletID, &rec.Hash, &rec.Tag, &params,
		&rec.InitialUses, &rec.RemainingUses, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &rec.Params); err != nil {
		return nil, fmt.Errorf("decode withdraw params: %w", err)
	}
	return rec, nil
}

// Create inserts a session unless one with the same hash exists, then reads
// back whichever row won. Concurrent creators for one secret all get the same record.
func (r *WithdrawRepo) Create(ctx context.Context, device *domain.Device, secret, tag string,
	params domain.WithdrawParams, uses int) (*domain.WithdrawRecord, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode withdraw params: %w", err)
	}

	hash := lnurlsig.DeriveHash(secret)
	now := time.Now().UTC()

	query := `INSERT INTO withdraw_records (` + withdrawColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $9)
		ON CONFLICT (hash) DO NOTHING`

	_, err = r.pool.Exec(ctx, query,
		uuid.New(), device.ID, device.APIKeyID, device.WalletID, hash, tag, encoded, uses, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert withdraw record: %w", err)
	}

	rec, err := r.getByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("withdraw record %s vanished after insert", hash)
	}
	return rec, nil
}

// GetBySecret returns the session for secret, or nil when there is none.
func (r *WithdrawRepo) GetBySecret(ctx context.Context, secret string) (*domain.WithdrawRecord, error) {
	return r.getByHash(ctx, lnurlsig.DeriveHash(secret))
}

func (r *WithdrawRepo) getByHash(ctx context.Context, hash string) (*domain.WithdrawRecord, error) {
	query := `SELECT ` + withdrawColumns + ` FROM withdraw_records WHERE hash = $1`

	rec, err := scanWithdraw(r.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get withdraw record: %w", err)
	}
	return rec, nil
}

// ConsumeOne atomically takes one use from the session.
func (r *WithdrawRepo) ConsumeOne(ctx context.Context, secret string) (bool, error) {
	return consumeOne(ctx, r.pool, secret)
}

// ConsumeOneTx is ConsumeOne inside tx; the use is only spent if tx commits.
func (r *WithdrawRepo) ConsumeOneTx(ctx context.Context, tx pgx.Tx, secret string) (bool, error) {
	return consumeOne(ctx, tx, secret)
}

func consumeOne(ctx context.Context, q querier, secret string) (bool, error) {
	query := `UPDATE withdraw_records
		SET remaining_uses = remaining_uses - 1, updated_at = NOW()
		WHERE hash = $1 AND remaining_uses > 0`

	tag, err := q.Exec(ctx, query, lnurlsig.DeriveHash(secret))
	if err != nil {
		return false, fmt.Errorf("consume withdraw use: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByDevice returns a device's sessions, newest first.
func (r *WithdrawRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]domain.WithdrawRecord, error) {
	query := `SELECT ` + withdrawColumns + ` FROM withdraw_records
		WHERE device_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list withdraw records: %w", err)
	}
	defer rows.Close()

	var records []domain.WithdrawRecord
	for rows.Next() {
		rec, err := scanWithdraw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdraw record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
