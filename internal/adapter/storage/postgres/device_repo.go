package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deviceColumns = `id, wallet_id, name, api_key_id, api_key_secret_enc, api_key_encoding,
	fiat_currency, exchange_rate_provider, fee, created_at, updated_at`

// deviceColumnFor maps patch fields to columns. Anything not listed here
// can never reach the SET clause.
var deviceColumnFor = map[domain.DeviceField]string{
	domain.DeviceFieldName:         "name",
	domain.DeviceFieldFiatCurrency: "fiat_currency",
	domain.DeviceFieldProvider:     "exchange_rate_provider",
	domain.DeviceFieldFee:          "fee",
}

// DeviceRepo implements ports.DeviceRepository.
type DeviceRepo struct {
	pool Pool
}

// NewDeviceRepo creates a new DeviceRepo.
func NewDeviceRepo(pool Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	d := &domain.Device{}
	err := row.Scan(
		&d.ID, &d.WalletID, &d.Name, &d.APIKeyID, &d.APIKeySecretEnc, &d.APIKeyEncoding,
		&d.FiatCurrency, &d.ExchangeRateProvider, &d.Fee, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Create inserts a new device.
func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	query := `INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.WalletID, d.Name, d.APIKeyID, d.APIKeySecretEnc, d.APIKeyEncoding,
		d.FiatCurrency, d.ExchangeRateProvider, d.Fee, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) getOne(ctx context.Context, where string, arg any) (*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE ` + where + ` = $1`

	d, err := scanDevice(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get device by %s: %w", where, err)
	}
	return d, nil
}

// GetByID fetches a device by its UUID.
func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	return r.getOne(ctx, "id", id)
}

// GetByAPIKeyID fetches the device owning a public API key id.
func (r *DeviceRepo) GetByAPIKeyID(ctx context.Context, apiKeyID string) (*domain.Device, error) {
	return r.getOne(ctx, "api_key_id", apiKeyID)
}

// ListByWallets returns the devices attached to any of walletIDs.
func (r *DeviceRepo) ListByWallets(ctx context.Context, walletIDs []uuid.UUID) ([]domain.Device, error) {
	if len(walletIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE wallet_id = ANY($1) ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, walletIDs)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// Update writes the fields set in patch and returns the updated row.
// An empty patch just reads the device back.
func (r *DeviceRepo) Update(ctx context.Context, id uuid.UUID, patch *domain.DevicePatch) (*domain.Device, error) {
	values := patch.Values()
	if len(values) == 0 {
		return r.GetByID(ctx, id)
	}

	sets := make([]string, 0, len(values)+1)
	args := make([]any, 0, len(values)+1)
	for _, v := range values {
		col, ok := deviceColumnFor[v.Field]
		if !ok {
			return nil, fmt.Errorf("update device: unknown field %q", v.Field)
		}
		args = append(args, v.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE devices SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), deviceColumns)

	d, err := scanDevice(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update device: %w", err)
	}
	return d, nil
}

// UpdateSecret replaces the encrypted HMAC secret after a key rotation.
func (r *DeviceRepo) UpdateSecret(ctx context.Context, id uuid.UUID, secretEnc string) error {
	query := `UPDATE devices SET api_key_secret_enc = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, secretEnc, id)
	if err != nil {
		return fmt.Errorf("update device secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device not found: %s", id)
	}
	return nil
}

// Delete removes a device. Its withdraw sessions go with it.
func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}
