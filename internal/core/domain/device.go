package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIKeyEncoding is the textual encoding of a device HMAC secret.
type APIKeyEncoding string

const (
	APIKeyEncodingHex    APIKeyEncoding = "hex"
	APIKeyEncodingBase64 APIKeyEncoding = "base64"
)

// Device is a registered ATM bound to a funding wallet.
type Device struct {
	ID                   uuid.UUID      `json:"id"`
	WalletID             uuid.UUID      `json:"wallet_id"`
	Name                 string         `json:"name"`
	APIKeyID             string         `json:"api_key_id"`
	APIKeySecretEnc      string         `json:"-"` // AES-GCM encrypted, never expose
	APIKeyEncoding       APIKeyEncoding `json:"api_key_encoding"`
	FiatCurrency         string         `json:"fiat_currency"`
	ExchangeRateProvider string         `json:"exchange_rate_provider"`
	Fee                  float64        `json:"fee"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// AcceptsCurrency reports whether code names the device's fiat currency.
func (d *Device) AcceptsCurrency(code string) bool {
	return strings.EqualFold(d.FiatCurrency, code)
}

// DeviceField names a mutable device column.
type DeviceField string

const (
	DeviceFieldName         DeviceField = "name"
	DeviceFieldFiatCurrency DeviceField = "fiat_currency"
	DeviceFieldProvider     DeviceField = "exchange_rate_provider"
	DeviceFieldFee          DeviceField = "fee"
)

// PatchValue is one assignment produced by a DevicePatch.
type PatchValue struct {
	Field DeviceField
	Value any
}

// DevicePatch is a partial device update. Only the fields set through its
// builder methods are written; the column set is closed.
type DevicePatch struct {
	name         *string
	fiatCurrency *string
	provider     *string
	fee          *float64
}

// NewDevicePatch returns an empty patch.
func NewDevicePatch() *DevicePatch {
	return &DevicePatch{}
}

func (p *DevicePatch) SetName(v string) *DevicePatch {
	p.name = &v
	return p
}

func (p *DevicePatch) SetFiatCurrency(v string) *DevicePatch {
	v = strings.ToUpper(v)
	p.fiatCurrency = &v
	return p
}

func (p *DevicePatch) SetExchangeRateProvider(v string) *DevicePatch {
	p.provider = &v
	return p
}

func (p *DevicePatch) SetFee(v float64) *DevicePatch {
	p.fee = &v
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p *DevicePatch) IsEmpty() bool {
	return len(p.Values()) == 0
}

// Values lists the assignments in a fixed column order.
func (p *DevicePatch) Values() []PatchValue {
	var out []PatchValue
	if p.name != nil {
		out = append(out, PatchValue{DeviceFieldName, *p.name})
	}
	if p.fiatCurrency != nil {
		out = append(out, PatchValue{DeviceFieldFiatCurrency, *p.fiatCurrency})
	}
	if p.provider != nil {
		out = append(out, PatchValue{DeviceFieldProvider, *p.provider})
	}
	if p.fee != nil {
		out = append(out, PatchValue{DeviceFieldFee, *p.fee})
	}
	return out
}

// Apply writes the patch onto d.
func (p *DevicePatch) Apply(d *Device) {
	if p.name != nil {
		d.Name = *p.name
	}
	if p.fiatCurrency != nil {
		d.FiatCurrency = *p.fiatCurrency
	}
	if p.provider != nil {
		d.ExchangeRateProvider = *p.provider
	}
	if p.fee != nil {
		d.Fee = *p.fee
	}
}

// Pricing returns the currency and provider the device would use after the
// patch, which is what a rate check has to validate.
func (p *DevicePatch) Pricing(d *Device) (currency, provider string) {
	currency, provider = d.FiatCurrency, d.ExchangeRateProvider
	if p.fiatCurrency != nil {
		currency = *p.fiatCurrency
	}
	if p.provider != nil {
		provider = *p.provider
	}
	return currency, provider
}

// TouchesPricing reports whether the patch changes currency or provider.
func (p *DevicePatch) TouchesPricing() bool {
	return p.fiatCurrency != nil || p.provider != nil
}
