package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MandateType is the debit-authorization channel.
type MandateType string

const (
	MandatePhysical MandateType = "PHYSICAL"
	MandateENach    MandateType = "ENACH"
)

// MandateStatus represents the lifecycle state of a mandate.
type MandateStatus string

const (
	MandateCreated   MandateStatus = "CREATED"
	MandateSubmitted MandateStatus = "SUBMITTED"
	MandateApproved  MandateStatus = "APPROVED"
	MandateRejected  MandateStatus = "REJECTED"
	MandateCancelled MandateStatus = "CANCELLED"
	MandateExpired   MandateStatus = "EXPIRED"
	MandateShifted   MandateStatus = "SHIFTED"
)

// Terminal reports whether the mandate status is final.
func (s MandateStatus) Terminal() bool {
	switch s {
	case MandateRejected, MandateCancelled, MandateExpired, MandateShifted:
		return true
	}
	return false
}

// Pollable reports whether the status-poll job should still query the
// exchange for this mandate. Only freshly created or submitted mandates
// change state at the exchange.
func (s MandateStatus) Pollable() bool {
	return s == MandateCreated || s == MandateSubmitted
}

var mandateTransitions = map[MandateStatus][]MandateStatus{
	MandateCreated:   {MandateSubmitted, MandateRejected},
	MandateSubmitted: {MandateApproved, MandateRejected, MandateCancelled, MandateExpired},
	MandateApproved:  {MandateShifted, MandateCancelled, MandateExpired},
}

// CanTransition reports whether moving from s to next is a valid forward step.
func (s MandateStatus) CanTransition(next MandateStatus) bool {
	if s == next || s.Terminal() {
		return false
	}
	for _, t := range mandateTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Mandate is a standing debit authorization funding systematic plans.
type Mandate struct {
	ID        string
	AdvisorID string
	ClientID  string

	// ExchangeMandateID is assigned by the exchange at registration, nil
	// until then. UMRN is assigned by the banking system and set exactly
	// once, at APPROVED.
	ExchangeMandateID *string
	UMRN              *string

	Type            MandateType
	Status          MandateStatus
	Amount          decimal.Decimal
	BankAccountID   *string
	BankCode        *string
	StartDate       *time.Time
	EndDate         *time.Time
	AuthURL         *string
	ResponseCode    *string
	ResponseMessage *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
