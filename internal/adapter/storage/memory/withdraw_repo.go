package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/pkg/lnurlsig"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WithdrawRepo implements ports.WithdrawRecordStore. A single mutex guards
// the map, so create-if-absent and decrement-if-positive are atomic.
type WithdrawRepo struct {
	mu      sync.Mutex
	records map[string]domain.WithdrawRecord // by hash
}

// NewWithdrawRepo creates the store. When devices is non-nil, deleting a
// device also drops its sessions.
func NewWithdrawRepo(devices *DeviceRepo) *WithdrawRepo {
	r := &WithdrawRepo{records: make(map[string]domain.WithdrawRecord)}
	if devices != nil {
		devices.mu.Lock()
		devices.onDelete = r.dropDevice
		devices.mu.Unlock()
	}
	return r
}

func (r *WithdrawRepo) Create(ctx context.Context, device *domain.Device, secret, tag string,
	params domain.WithdrawParams, uses int) (*domain.WithdrawRecord, error) {
	hash := lnurlsig.DeriveHash(secret)

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[hash]; ok {
		return &rec, nil
	}

	now := time.Now().UTC()
	rec := domain.WithdrawRecord{
		ID:            uuid.New(),
		DeviceID:      device.ID,
		APIKeyID:      device.APIKeyID,
		WalletID:      device.WalletID,
		Hash:          hash,
		Tag:           tag,
		Params:        params,
		InitialUses:   uses,
		RemainingUses: uses,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.records[hash] = rec
	return &rec, nil
}

func (r *WithdrawRepo) GetBySecret(ctx context.Context, secret string) (*domain.WithdrawRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[lnurlsig.DeriveHash(secret)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *WithdrawRepo) ConsumeOne(ctx context.Context, secret string) (bool, error) {
	return r.consume(nil, secret), nil
}

func (r *WithdrawRepo) ConsumeOneTx(ctx context.Context, tx pgx.Tx, secret string) (bool, error) {
	return r.consume(asTx(tx), secret), nil
}

func (r *WithdrawRepo) consume(tx *Tx, secret string) bool {
	hash := lnurlsig.DeriveHash(secret)

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[hash]
	if !ok || rec.RemainingUses <= 0 {
		return false
	}
	rec.RemainingUses--
	rec.UpdatedAt = time.Now().UTC()
	r.records[hash] = rec

	if tx != nil {
		tx.onRollback(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if cur, ok := r.records[hash]; ok {
				cur.RemainingUses++
				r.records[hash] = cur
			}
		})
	}
	return true
}

func (r *WithdrawRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]domain.WithdrawRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WithdrawRecord
	for _, rec := range r.records {
		if rec.DeviceID == deviceID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *WithdrawRepo) dropDevice(deviceID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, rec := range r.records {
		if rec.DeviceID == deviceID {
			delete(r.records, hash)
		}
	}
}
