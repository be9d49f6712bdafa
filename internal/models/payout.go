package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutCompleted, PayoutFailed:
		return true
	}
	return false
}

// PendingPayout is a claimed win waiting on a transfer from the house wallet.
// Nothing in this service performs that transfer.
type PendingPayout struct {
	ID        string          `json:"id" redis:"id"`
	Wallet    string          `json:"wallet" redis:"wallet"`
	Amount    decimal.Decimal `json:"amount" redis:"amount"`
	ToAddress string          `json:"to_address" redis:"to_address"`
	Status    PayoutStatus    `json:"status" redis:"status"`
	CreatedAt time.Time       `json:"created_at" redis:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" redis:"updated_at"`
}
