package dto

import (
	"time"

	"lnurl-atm-gateway/internal/core/domain"
)

// CreateDeviceRequest is the request body for device registration.
type CreateDeviceRequest struct {
	Name                 string  `json:"name" binding:"required,min=1,max=100"`
	WalletID             string  `json:"wallet_id" binding:"required,uuid"`
	FiatCurrency         string  `json:"fiat_currency" binding:"required,fiat_code"`
	ExchangeRateProvider string  `json:"exchange_rate_provider" binding:"required,safe_id"`
	Fee                  float64 `json:"fee" binding:"gte=0,lt=1"`
}

// UpdateDeviceRequest is a partial device update; absent fields are left alone.
type UpdateDeviceRequest struct {
	Name                 *string  `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	FiatCurrency         *string  `json:"fiat_currency,omitempty" binding:"omitempty,fiat_code"`
	ExchangeRateProvider *string  `json:"exchange_rate_provider,omitempty" binding:"omitempty,safe_id"`
	Fee                  *float64 `json:"fee,omitempty" binding:"omitempty,gte=0,lt=1"`
}

// Patch converts the request into a device patch.
func (r *UpdateDeviceRequest) Patch() *domain.DevicePatch {
	p := domain.NewDevicePatch()
	if r.Name != nil {
		p.SetName(*r.Name)
	}
	if r.FiatCurrency != nil {
		p.SetFiatCurrency(*r.FiatCurrency)
	}
	if r.ExchangeRateProvider != nil {
		p.SetExchangeRateProvider(*r.ExchangeRateProvider)
	}
	if r.Fee != nil {
		p.SetFee(*r.Fee)
	}
	return p
}

// DeviceResponse is a device without its secret.
type DeviceResponse struct {
	ID                   string    `json:"id"`
	WalletID             string    `json:"wallet_id"`
	Name                 string    `json:"name"`
	APIKeyID             string    `json:"api_key_id"`
	APIKeyEncoding       string    `json:"api_key_encoding"`
	FiatCurrency         string    `json:"fiat_currency"`
	ExchangeRateProvider string    `json:"exchange_rate_provider"`
	Fee                  float64   `json:"fee"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DeviceCredentialsResponse is returned once on create and key rotation.
type DeviceCredentialsResponse struct {
	DeviceResponse
	APIKeySecret string `json:"api_key_secret"`
}

// NewDeviceResponse maps a domain device.
func NewDeviceResponse(d *domain.Device) DeviceResponse {
	return DeviceResponse{
		ID:                   d.ID.String(),
		WalletID:             d.WalletID.String(),
		Name:                 d.Name,
		APIKeyID:             d.APIKeyID,
		APIKeyEncoding:       string(d.APIKeyEncoding),
		FiatCurrency:         d.FiatCurrency,
		ExchangeRateProvider: d.ExchangeRateProvider,
		Fee:                  d.Fee,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// TopupRequest is the request body for wallet topup.
type TopupRequest struct {
	AmountMsat int64 `json:"amount_msat" binding:"required,gt=0"`
}

// WalletResponse is the response body for a funding wallet.
type WalletResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	BalanceMsat int64     `json:"balance_msat"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewWalletResponse maps a domain wallet.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:          w.ID.String(),
		Name:        w.Name,
		BalanceMsat: w.BalanceMsat,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// WithdrawRecordResponse describes one withdraw session. The secret and its
// hash are never returned.
type WithdrawRecordResponse struct {
	ID                 string    `json:"id"`
	Tag                string    `json:"tag"`
	MinWithdrawable    int64     `json:"min_withdrawable"`
	MaxWithdrawable    int64     `json:"max_withdrawable"`
	DefaultDescription string    `json:"default_description"`
	InitialUses        int       `json:"initial_uses"`
	RemainingUses      int       `json:"remaining_uses"`
	State              string    `json:"state"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewWithdrawRecordResponse maps a domain withdraw record.
func NewWithdrawRecordResponse(r *domain.WithdrawRecord) WithdrawRecordResponse {
	return WithdrawRecordResponse{
		ID:                 r.ID.String(),
		Tag:                r.Tag,
		MinWithdrawable:    r.Params.MinWithdrawable,
		MaxWithdrawable:    r.Params.MaxWithdrawable,
		DefaultDescription: r.Params.DefaultDescription,
		InitialUses:        r.InitialUses,
		RemainingUses:      r.RemainingUses,
		State:              string(r.State()),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
