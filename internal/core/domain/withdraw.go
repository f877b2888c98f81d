package domain

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawParams are the withdrawRequest bounds frozen when a session is issued.
// Amounts are millisatoshis.
type WithdrawParams struct {
	MinWithdrawable    int64  `json:"minWithdrawable"`
	MaxWithdrawable    int64  `json:"maxWithdrawable"`
	DefaultDescription string `json:"defaultDescription"`
}

// Allows reports whether amountMsat lies within the frozen bounds.
func (p WithdrawParams) Allows(amountMsat int64) bool {
	return amountMsat >= p.MinWithdrawable && amountMsat <= p.MaxWithdrawable
}

// SessionState is the redemption state of a withdraw session.
type SessionState string

const (
	SessionIssued            SessionState = "ISSUED"
	SessionPartiallyRedeemed SessionState = "PARTIALLY_REDEEMED"
	SessionExhausted         SessionState = "EXHAUSTED"
)

// WithdrawRecord is a withdraw session. It is found only through Hash, the
// SHA-256 of the session secret; the secret itself is never stored.
type WithdrawRecord struct {
	ID            uuid.UUID      `json:"id"`
	DeviceID      uuid.UUID      `json:"device_id"`
	APIKeyID      string         `json:"api_key_id"`
	WalletID      uuid.UUID      `json:"wallet_id"`
	Hash          string         `json:"-"`
	Tag           string         `json:"tag"`
	Params        WithdrawParams `json:"params"`
	InitialUses   int            `json:"initial_uses"`
	RemainingUses int            `json:"remaining_uses"`
	CreatedAt     time.Time      `json:"created_time"`
	UpdatedAt     time.Time      `json:"updated_time"`
}

// HasUsesRemaining reports whether the session can still be redeemed.
func (r *WithdrawRecord) HasUsesRemaining() bool {
	return r.RemainingUses > 0
}

// State derives the session state from the use counters.
func (r *WithdrawRecord) State() SessionState {
	switch {
	case r.RemainingUses <= 0:
		return SessionExhausted
	case r.RemainingUses < r.InitialUses:
		return SessionPartiallyRedeemed
	default:
		return SessionIssued
	}
}
