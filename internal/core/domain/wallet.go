package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is an operator funding wallet. Devices pay withdrawals out of it.
type Wallet struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	BalanceMsat int64     `json:"balance_msat"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CanCover reports whether the balance covers amountMsat.
func (w *Wallet) CanCover(amountMsat int64) bool {
	return w.BalanceMsat >= amountMsat
}
