// Package lightning pays BOLT11 invoices through a Lightning node.
package lightning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lnurl-atm-gateway/internal/core/domain"

	decodepay "github.com/nbd-wtf/ln-decodepay"
)

// ErrNoAmount is returned for invoices that leave the amount to the payer.
var ErrNoAmount = errors.New("invoice has no amount")

// Decoder implements ports.InvoiceDecoder.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses bolt11. A "lightning:" URI prefix is accepted.
func (Decoder) Decode(bolt11 string) (*domain.Invoice, error) {
	pr := strings.TrimSpace(bolt11)
	if len(pr) > 10 && strings.EqualFold(pr[:10], "lightning:") {
		pr = pr[10:]
	}
	pr = strings.ToLower(pr)

	inv, err := decodepay.Decodepay(pr)
	if err != nil {
		return nil, fmt.Errorf("decoding invoice: %w", err)
	}
	if inv.MSatoshi <= 0 {
		return nil, ErrNoAmount
	}

	return &domain.Invoice{
		PaymentRequest: pr,
		PaymentHash:    inv.PaymentHash,
		AmountMsat:     inv.MSatoshi,
		Description:    inv.Description,
		CreatedAt:      time.Unix(int64(inv.CreatedAt), 0).UTC(),
		Expiry:         time.Duration(inv.Expiry) * time.Second,
	}, nil
}
