// Package models defines the entities persisted by the gateway.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType represents the kind of exchange order.
type OrderType string

const (
	OrderTypePurchase   OrderType = "PURCHASE"
	OrderTypeRedemption OrderType = "REDEMPTION"
	OrderTypeSwitch     OrderType = "SWITCH"
	OrderTypeSpread     OrderType = "SPREAD"
	OrderTypeSIP        OrderType = "SIP"
	OrderTypeXSIP       OrderType = "XSIP"
	OrderTypeSTP        OrderType = "STP"
	OrderTypeSWP        OrderType = "SWP"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	// OrderCreated is the pre-submission state: the row exists but the
	// exchange has not been called yet. Submit resolves it before returning.
	OrderCreated        OrderStatus = "CREATED"
	OrderSubmitted      OrderStatus = "SUBMITTED"
	OrderAccepted       OrderStatus = "ACCEPTED"
	OrderRejected       OrderStatus = "REJECTED"
	OrderPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderPaymentSuccess OrderStatus = "PAYMENT_SUCCESS"
	OrderPaymentFailed  OrderStatus = "PAYMENT_FAILED"
	OrderAllotted       OrderStatus = "ALLOTTED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderFailed         OrderStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal statuses are never
// overwritten by reconciliation polls.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderAllotted, OrderRejected, OrderCancelled, OrderFailed:
		return true
	}
	return false
}

// orderTransitions is the reachability graph for order statuses. A poll or
// handler may only move an order along an edge listed here.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderCreated:        {OrderSubmitted, OrderRejected, OrderFailed},
	OrderSubmitted:      {OrderAccepted, OrderRejected, OrderPaymentPending, OrderAllotted, OrderCancelled, OrderFailed},
	OrderAccepted:       {OrderPaymentPending, OrderAllotted, OrderCancelled, OrderFailed},
	OrderPaymentPending: {OrderPaymentSuccess, OrderPaymentFailed, OrderAllotted, OrderCancelled, OrderFailed},
	OrderPaymentSuccess: {OrderAllotted, OrderCancelled, OrderFailed},
	OrderPaymentFailed:  {OrderPaymentPending, OrderAllotted, OrderCancelled, OrderFailed},
}

// CanTransition reports whether moving from s to next is a valid forward step.
// Re-applying the current status is treated as a no-op, not a violation.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return false
	}
	if s.Terminal() {
		return false
	}
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Order is a single exchange order, lumpsum or systematic registration.
type Order struct {
	ID              string
	AdvisorID       string
	ClientID        string
	Type            OrderType
	Status          OrderStatus
	TransCode       string
	SchemeCode      string
	TargetScheme    *string // switch/STP destination
	BuySell         string  // P or R
	BuySellType     *string // FRESH or ADDITIONAL
	Amount          *decimal.Decimal
	Units           *decimal.Decimal
	DPTxnMode       string
	FolioNumber     *string
	ReferenceNumber string

	// Exchange-assigned identifiers, nil until accepted.
	ExchangeOrderNumber *string
	RegistrationNumber  *string // systematic plans

	// Systematic plan fields.
	MandateRef     *string
	Frequency      *string
	StartDate      *time.Time
	EndDate        *time.Time
	Installments   *int
	FirstOrderFlag *string

	// Allotment fields, nil until ALLOTTED.
	AllottedUnits  *decimal.Decimal
	AllottedNAV    *decimal.Decimal
	AllottedAmount *decimal.Decimal
	AllottedAt     *time.Time

	ResponseCode    *string
	ResponseMessage *string
	SubmittedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChildOrder is one realized installment of a systematic plan. Upserted by
// (OrderID, InstallmentNo) so report syncs are safe to re-run.
type ChildOrder struct {
	ID                  int64
	OrderID             string
	InstallmentNo       int
	ExchangeOrderNumber string
	Amount              *decimal.Decimal
	Units               *decimal.Decimal
	NAV                 *decimal.Decimal
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
