package ports

//go:generate mockgen -source=services.go -destination=mocks/services_mock.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService signs and verifies LNURL callback queries.
type SignatureService interface {
	Sign(query map[string]string, secret string, encoding domain.APIKeyEncoding) (string, error)
	Verify(query map[string]string, secret string, encoding domain.APIKeyEncoding) bool
}

// TokenService handles operator JWT operations.
type TokenService interface {
	Generate(operatorID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OperatorID uuid.UUID
}

// ExchangeRateProvider fetches the price of one BTC in a fiat currency.
type ExchangeRateProvider interface {
	Name() string
	FetchRate(ctx context.Context, currency string) (float64, error)
}

// ExchangeRateRegistry resolves provider ids to providers.
type ExchangeRateRegistry interface {
	Get(name string) (ExchangeRateProvider, bool)
	Names() []string
}

// RateCache is the shared rate cache layer.
type RateCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, provider, currency string) (rate float64, ok bool, err error)
	Set(ctx context.Context, provider, currency string, rate float64, ttl time.Duration) error
}

// RateConverter converts fiat amounts into net millisatoshis.
type RateConverter interface {
	ToMsat(ctx context.Context, amount float64, currency, provider string, fee float64) (int64, error)
	// CheckPair fails with a conversion error when the provider cannot price currency.
	CheckPair(ctx context.Context, currency, provider string) error
	Providers() []string
}

// PaymentClaimStore guards against paying the same invoice twice concurrently.
type PaymentClaimStore interface {
	// Claim returns false if paymentHash is already claimed.
	Claim(ctx context.Context, paymentHash string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, paymentHash string) error
}

// ErrPaymentOutcomeUnknown marks a payment that was handed to the node but
// whose final state was never observed. It may still settle.
var ErrPaymentOutcomeUnknown = errors.New("payment outcome unknown")

// PaymentFailure is a backend error carrying the node-reported failure reason.
type PaymentFailure interface {
	error
	FailureReason() string
}

// InvoiceDecoder parses BOLT11 payment requests.
type InvoiceDecoder interface {
	Decode(bolt11 string) (*domain.Invoice, error)
}

// LightningBackend pays invoices. It is a blocking call bounded by ctx.
type LightningBackend interface {
	PayInvoice(ctx context.Context, bolt11 string, feeLimitMsat int64) (*domain.Payment, error)
	Name() string
}

// --- Service Ports (Business Logic) ---

// WithdrawRequest is one callback hit on the withdraw endpoint.
type WithdrawRequest struct {
	Query       map[string]string
	CallbackURL string
	ClientIP    string
}

// WithdrawOffer is the info-phase answer handed to the wallet app.
type WithdrawOffer struct {
	Tag                string
	Callback           string
	K1                 string
	MinWithdrawable    int64
	MaxWithdrawable    int64
	DefaultDescription string
}

// WithdrawService runs the LNURL-withdraw protocol.
type WithdrawService interface {
	// Handle returns an offer for info requests, nil for a fulfilled action
	// request, or a tagged *apperror.AppError.
	Handle(ctx context.Context, req WithdrawRequest) (*WithdrawOffer, error)
}

// CreateDeviceRequest holds input for device registration.
type CreateDeviceRequest struct {
	OperatorID           uuid.UUID
	WalletID             uuid.UUID
	Name                 string
	FiatCurrency         string
	ExchangeRateProvider string
	Fee                  float64
}

// DeviceCredentials is the device with its plaintext secret, shown once.
type DeviceCredentials struct {
	Device       *domain.Device
	APIKeySecret string
}

// DeviceService defines operator device management.
type DeviceService interface {
	Create(ctx context.Context, req CreateDeviceRequest) (*DeviceCredentials, error)
	List(ctx context.Context, operatorID uuid.UUID, walletID *uuid.UUID) ([]domain.Device, error)
	Get(ctx context.Context, operatorID, deviceID uuid.UUID) (*domain.Device, error)
	GetByAPIKeyID(ctx context.Context, operatorID uuid.UUID, apiKeyID string) (*domain.Device, error)
	Update(ctx context.Context, operatorID, deviceID uuid.UUID, patch *domain.DevicePatch) (*domain.Device, error)
	RotateKey(ctx context.Context, operatorID, deviceID uuid.UUID) (*DeviceCredentials, error)
	Delete(ctx context.Context, operatorID, deviceID uuid.UUID) error
	ExportConfig(ctx context.Context, operatorID, deviceID uuid.UUID, callbackURL string) (string, error)
	ListWithdrawals(ctx context.Context, operatorID, deviceID uuid.UUID) ([]domain.WithdrawRecord, error)
}

// WalletService defines operator funding wallet management.
type WalletService interface {
	Create(ctx context.Context, operatorID uuid.UUID, name string) (*domain.Wallet, error)
	List(ctx context.Context, operatorID uuid.UUID) ([]domain.Wallet, error)
	Get(ctx context.Context, operatorID, walletID uuid.UUID) (*domain.Wallet, error)
	Topup(ctx context.Context, operatorID, walletID uuid.UUID, amountMsat int64) (*domain.Wallet, error)
}

// AuditService records operator actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
