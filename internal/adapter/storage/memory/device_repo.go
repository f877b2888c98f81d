package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// DeviceRepo implements ports.DeviceRepository.
type DeviceRepo struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]domain.Device
	byKey   map[string]uuid.UUID

	// onDelete lets the withdraw store drop a deleted device's sessions.
	onDelete func(deviceID uuid.UUID)
}

func NewDeviceRepo() *DeviceRepo {
	return &DeviceRepo{
		devices: make(map[uuid.UUID]domain.Device),
		byKey:   make(map[string]uuid.UUID),
	}
}

func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[d.APIKeyID]; ok {
		return fmt.Errorf("api key id %s already exists", d.APIKeyID)
	}
	r.devices[d.ID] = *d
	r.byKey[d.APIKeyID] = d.ID
	return nil
}

func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *DeviceRepo) GetByAPIKeyID(ctx context.Context, apiKeyID string) (*domain.Device, error) {
	r.mu.RLock()
	id, ok := r.byKey[apiKeyID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *DeviceRepo) ListByWallets(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Device, error) {
	want := make(map[uuid.UUID]bool, len(walletIDs))
	for _, id := range walletIDs {
		want[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Device
	for _, d := range r.devices {
		if want[d.WalletID] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DeviceRepo) Update(ctx context.Context, id uuid.UUID, patch *domain.DevicePatch) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, nil
	}
	if !patch.IsEmpty() {
		patch.Apply(&d)
		d.UpdatedAt = time.Now().UTC()
		r.devices[id] = d
	}
	return &d, nil
}

func (r *DeviceRepo) UpdateSecret(ctx context.Context, id uuid.UUID, secretEnc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("device not found: %s", id)
	}
	d.APIKeySecretEnc = secretEnc
	d.UpdatedAt = time.Now().UTC()
	r.devices[id] = d
	return nil
}

func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	if ok {
		delete(r.devices, id)
		delete(r.byKey, d.APIKeyID)
	}
	onDelete := r.onDelete
	r.mu.Unlock()

	if ok && onDelete != nil {
		onDelete(id)
	}
	return nil
}
