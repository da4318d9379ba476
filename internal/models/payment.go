package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode is the funding channel offered by the exchange.
type PaymentMode string

const (
	PaymentModeDirect PaymentMode = "DIRECT"
	PaymentModeNodal  PaymentMode = "NODAL"
	PaymentModeNEFT   PaymentMode = "NEFT"
	PaymentModeUPI    PaymentMode = "UPI"
)

// Valid reports whether the mode is one the exchange accepts.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeDirect, PaymentModeNodal, PaymentModeNEFT, PaymentModeUPI:
		return true
	}
	return false
}

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	// PaymentInitiated is written before the exchange is called, so a crash
	// mid-call leaves an auditable record.
	PaymentInitiated  PaymentStatus = "INITIATED"
	PaymentRedirected PaymentStatus = "REDIRECTED"
	PaymentSuccess    PaymentStatus = "SUCCESS"
	PaymentFailed     PaymentStatus = "FAILED"
)

// Terminal reports whether the payment status is final. Callback re-delivery
// of the same terminal status is a no-op.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

// Payment is the single funding attempt attached to an order.
type Payment struct {
	ID              string
	OrderID         string
	Mode            PaymentMode
	Status          PaymentStatus
	Amount          decimal.Decimal
	BankCode        *string
	RedirectURL     *string
	TransactionRef  *string
	ResponseCode    *string
	ResponseMessage *string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
