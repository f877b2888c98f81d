package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	apiKeyIDBytes     = 8
	apiKeySecretBytes = 32
)

type deviceService struct {
	devices ports.DeviceRepository
	wallets ports.WalletRepository
	records ports.WithdrawRecordStore
	rates   ports.RateConverter
	encSvc  ports.EncryptionService
	log     zerolog.Logger
}

// NewDeviceService creates the operator-facing device service.
func NewDeviceService(
	devices ports.DeviceRepository,
	wallets ports.WalletRepository,
	records ports.WithdrawRecordStore,
	rates ports.RateConverter,
	encSvc ports.EncryptionService,
	log zerolog.Logger,
) ports.DeviceService {
	return &deviceService{
		devices: devices,
		wallets: wallets,
		records: records,
		rates:   rates,
		encSvc:  encSvc,
		log:     log,
	}
}

// Create registers a device on one of the operator's wallets. The rate pair
// is checked before anything is written.
func (s *deviceService) Create(ctx context.Context, req ports.CreateDeviceRequest) (*ports.DeviceCredentials, error) {
	if _, err := s.ownedWallet(ctx, req.OperatorID, req.WalletID); err != nil {
		return nil, err
	}
	if err := validateFee(req.Fee); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.FiatCurrency)
	if err := s.rates.CheckPair(ctx, currency, req.ExchangeRateProvider); err != nil {
		return nil, err
	}

	apiKeyID, err := generateKey(apiKeyIDBytes)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate api key id: %w", err))
	}
	secret, encSecret, err := s.newSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	device := &domain.Device{
		ID:                   uuid.New(),
		WalletID:             req.WalletID,
		Name:                 req.Name,
		APIKeyID:             apiKeyID,
		APIKeySecretEnc:      encSecret,
		APIKeyEncoding:       domain.APIKeyEncodingHex,
		FiatCurrency:         currency,
		ExchangeRateProvider: req.ExchangeRateProvider,
		Fee:                  req.Fee,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create device: %w", err))
	}

	s.log.Info().
		Str("device_id", device.ID.String()).
		Str("api_key_id", apiKeyID).
		Str("wallet_id", req.WalletID.String()).
		Msg("device registered")

	return &ports.DeviceCredentials{Device: device, APIKeySecret: secret}, nil
}

// List returns devices on one wallet, or on every wallet of the operator when walletID is nil.
func (s *deviceService) List(ctx context.Context, operatorID uuid.UUID, walletID *uuid.UUID) ([]domain.Device, error) {
	var walletIDs []uuid.UUID
	if walletID != nil {
		if _, err := s.ownedWallet(ctx, operatorID, *walletID); err != nil {
			return nil, err
		}
		walletIDs = []uuid.UUID{*walletID}
	} else {
		wallets, err := s.wallets.ListByOwner(ctx, operatorID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(err)
		}
		for _, w := range wallets {
			walletIDs = append(walletIDs, w.ID)
		}
	}

	devices, err := s.devices.ListByWallets(ctx, walletIDs)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	return devices, nil
}

func (s *deviceService) Get(ctx context.Context, operatorID, deviceID uuid.UUID) (*domain.Device, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return s.checkOwner(ctx, operatorID, device)
}

func (s *deviceService) GetByAPIKeyID(ctx context.Context, operatorID uuid.UUID, apiKeyID string) (*domain.Device, error) {
	device, err := s.devices.GetByAPIKeyID(ctx, apiKeyID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return s.checkOwner(ctx, operatorID, device)
}

// Update applies a partial update. A patch touching currency or provider is
// rejected when the resulting pair cannot be priced.
func (s *deviceService) Update(ctx context.Context, operatorID, deviceID uuid.UUID, patch *domain.DevicePatch) (*domain.Device, error) {
	device, err := s.Get(ctx, operatorID, deviceID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return device, nil
	}

	candidate := *device
	patch.Apply(&candidate)
	if err := validateFee(candidate.Fee); err != nil {
		return nil, err
	}
	if patch.TouchesPricing() {
		currency, provider := patch.Pricing(device)
		if err := s.rates.CheckPair(ctx, currency, provider); err != nil {
			return nil, err
		}
	}

	updated, err := s.devices.Update(ctx, deviceID, patch)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update device: %w", err))
	}
	if updated == nil {
		return nil, apperror.ErrDeviceNotFound()
	}
	return updated, nil
}

// RotateKey replaces the device secret. Sessions already issued stay redeemable.
func (s *deviceService) RotateKey(ctx context.Context, operatorID, deviceID uuid.UUID) (*ports.DeviceCredentials, error) {
	device, err := s.Get(ctx, operatorID, deviceID)
	if err != nil {
		return nil, err
	}

	secret, encSecret, err := s.newSecret()
	if err != nil {
		return nil, err
	}
	if err := s.devices.UpdateSecret(ctx, deviceID, encSecret); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("rotate device key: %w", err))
	}
	device.APIKeySecretEnc = encSecret
	device.UpdatedAt = time.Now().UTC()

	s.log.Info().Str("api_key_id", device.APIKeyID).Msg("device key rotated")
	return &ports.DeviceCredentials{Device: device, APIKeySecret: secret}, nil
}

func (s *deviceService) Delete(ctx context.Context, operatorID, deviceID uuid.UUID) error {
	if _, err := s.Get(ctx, operatorID, deviceID); err != nil {
		return err
	}
	if err := s.devices.Delete(ctx, deviceID); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("delete device: %w", err))
	}
	return nil
}

// ExportConfig renders the key=value configuration file loaded onto the device.
func (s *deviceService) ExportConfig(ctx context.Context, operatorID, deviceID uuid.UUID, callbackURL string) (string, error) {
	device, err := s.Get(ctx, operatorID, deviceID)
	if err != nil {
		return "", err
	}
	secret, err := s.encSvc.Decrypt(device.APIKeySecretEnc)
	if err != nil {
		return "", apperror.ErrEncryptionFailure(err)
	}

	lines := []string{
		"apiKey.id=" + device.APIKeyID,
		"apiKey.key=" + secret,
		"apiKey.encoding=" + string(device.APIKeyEncoding),
		"fiatCurrency=" + device.FiatCurrency,
		"callbackUrl=" + callbackURL,
		"shorten=true",
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func (s *deviceService) ListWithdrawals(ctx context.Context, operatorID, deviceID uuid.UUID) ([]domain.WithdrawRecord, error) {
	if _, err := s.Get(ctx, operatorID, deviceID); err != nil {
		return nil, err
	}
	records, err := s.records.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if records == nil {
		records = []domain.WithdrawRecord{}
	}
	return records, nil
}

// checkOwner hides devices on other operators' wallets behind the same
// not-found error as missing ones.
func (s *deviceService) checkOwner(ctx context.Context, operatorID uuid.UUID, device *domain.Device) (*domain.Device, error) {
	if device == nil {
		return nil, apperror.ErrDeviceNotFound()
	}
	wallet, err := s.wallets.GetByID(ctx, device.WalletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if wallet == nil || wallet.OwnerID != operatorID {
		return nil, apperror.ErrDeviceNotFound()
	}
	return device, nil
}

func (s *deviceService) ownedWallet(ctx context.Context, operatorID, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if wallet == nil || wallet.OwnerID != operatorID {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

func (s *deviceService) newSecret() (plain, sealed string, err error) {
	plain, err = generateKey(apiKeySecretBytes)
	if err != nil {
		return "", "", apperror.InternalError(fmt.Errorf("generate api key secret: %w", err))
	}
	sealed, err = s.encSvc.Encrypt(plain)
	if err != nil {
		return "", "", apperror.ErrEncryptionFailure(fmt.Errorf("encrypt api key secret: %w", err))
	}
	return plain, sealed, nil
}

func validateFee(fee float64) error {
	if fee < 0 || fee >= 1 {
		return apperror.Validation("fee must be at least 0 and below 1")
	}
	return nil
}

func generateKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
