package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithdrawRecord_State(t *testing.T) {
	tests := []struct {
		name      string
		initial   int
		remaining int
		want      SessionState
		usable    bool
	}{
		{"issued", 1, 1, SessionIssued, true},
		{"issued multi-use", 3, 3, SessionIssued, true},
		{"partially redeemed", 3, 1, SessionPartiallyRedeemed, true},
		{"exhausted", 1, 0, SessionExhausted, false},
		{"exhausted multi-use", 3, 0, SessionExhausted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &WithdrawRecord{InitialUses: tt.initial, RemainingUses: tt.remaining}
			assert.Equal(t, tt.want, r.State())
			assert.Equal(t, tt.usable, r.HasUsesRemaining())
		})
	}
}

func TestWithdrawParams_Allows(t *testing.T) {
	p := WithdrawParams{MinWithdrawable: 1000, MaxWithdrawable: 5000}

	tests := []struct {
		amount int64
		want   bool
	}{
		{999, false},
		{1000, true},
		{3000, true},
		{5000, true},
		{5001, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Allows(tt.amount), "amount %d", tt.amount)
	}
}

func TestDevice_AcceptsCurrency(t *testing.T) {
	d := &Device{FiatCurrency: "EUR"}
	assert.True(t, d.AcceptsCurrency("EUR"))
	assert.True(t, d.AcceptsCurrency("eur"))
	assert.False(t, d.AcceptsCurrency("USD"))
}

func TestDevicePatch(t *testing.T) {
	d := &Device{Name: "old", FiatCurrency: "EUR", ExchangeRateProvider: "coinbase", Fee: 0.01}

	p := NewDevicePatch()
	assert.True(t, p.IsEmpty())
	assert.False(t, p.TouchesPricing())

	p.SetFee(0.02).SetFiatCurrency("usd")
	assert.False(t, p.IsEmpty())
	assert.True(t, p.TouchesPricing())

	currency, provider := p.Pricing(d)
	assert.Equal(t, "USD", currency)
	assert.Equal(t, "coinbase", provider)

	assert.Equal(t, []PatchValue{
		{DeviceFieldFiatCurrency, "USD"},
		{DeviceFieldFee, 0.02},
	}, p.Values())

	p.Apply(d)
	assert.Equal(t, "old", d.Name)
	assert.Equal(t, "USD", d.FiatCurrency)
	assert.Equal(t, 0.02, d.Fee)
}

func TestWallet_CanCover(t *testing.T) {
	w := &Wallet{BalanceMsat: 52000}
	assert.True(t, w.CanCover(52000))
	assert.False(t, w.CanCover(52001))
}

func TestInvoice_Expired(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inv := &Invoice{CreatedAt: created, Expiry: time.Hour}

	assert.False(t, inv.Expired(created.Add(59*time.Minute)))
	assert.True(t, inv.Expired(created.Add(61*time.Minute)))

	inv.Expiry = 0
	assert.False(t, inv.Expired(created.Add(100*time.Hour)))
}
