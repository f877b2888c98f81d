package ports

//go:generate mockgen -source=repositories.go -destination=mocks/repositories_mock.go -package=mocks

import (
	"context"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DeviceRepository defines persistence operations for ATM devices.
type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error)
	GetByAPIKeyID(ctx context.Context, apiKeyID string) (*domain.Device, error)
	ListByWallets(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Device, error)
	Update(ctx context.Context, id uuid.UUID, patch *domain.DevicePatch) (*domain.Device, error)
	UpdateSecret(ctx context.Context, id uuid.UUID, secretEnc string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// WithdrawRecordStore persists withdraw sessions keyed by the hash of their secret.
type WithdrawRecordStore interface {
	// Create inserts a session for secret. When a session with the same hash
	// already exists it is returned unchanged.
	Create(ctx context.Context, device *domain.Device, secret, tag string, params domain.WithdrawParams, uses int) (*domain.WithdrawRecord, error)
	// GetBySecret returns nil, nil when no session matches.
	GetBySecret(ctx context.Context, secret string) (*domain.WithdrawRecord, error)
	// ConsumeOne decrements remaining uses if positive. It reports false when
	// the session is missing or exhausted.
	ConsumeOne(ctx context.Context, secret string) (bool, error)
	// ConsumeOneTx is ConsumeOne inside an open transaction.
	ConsumeOneTx(ctx context.Context, tx pgx.Tx, secret string) (bool, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]domain.WithdrawRecord, error)
}

// WalletRepository defines persistence operations for funding wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// AdjustBalance adds deltaMsat (negative to debit). The balance never goes below zero.
	AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaMsat int64) error
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
