package domain

import "time"

// Invoice is the subset of a decoded BOLT11 payment request the withdraw flow needs.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	AmountMsat     int64
	Description    string
	CreatedAt      time.Time
	Expiry         time.Duration
}

// Expired reports whether the invoice is past its expiry at now.
func (i *Invoice) Expired(now time.Time) bool {
	if i.Expiry <= 0 {
		return false
	}
	return now.After(i.CreatedAt.Add(i.Expiry))
}

// Payment is the result of a settled outgoing payment.
type Payment struct {
	PaymentHash string
	Preimage    string
	FeeMsat     int64
}
