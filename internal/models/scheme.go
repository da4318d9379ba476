package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemeMaster is the read-mostly scheme catalog refreshed by the weekly
// sync job. CSV tags match the exchange's scheme-master download format.
type SchemeMaster struct {
	SchemeCode        string           `csv:"SchemeCode"`
	SchemeName        string           `csv:"SchemeName"`
	ISIN              string           `csv:"ISIN"`
	AMCCode           string           `csv:"AMCCode"`
	PurchaseAllowed   bool             `csv:"-"`
	RedemptionAllowed bool             `csv:"-"`
	SIPAllowed        bool             `csv:"-"`
	MinPurchaseAmount *decimal.Decimal `csv:"-"`
	MinSIPAmount      *decimal.Decimal `csv:"-"`
	LastSyncedAt      time.Time        `csv:"-"`

	// Raw CSV flag/amount columns, normalized into the typed fields above
	// during sync.
	PurchaseAllowedRaw   string `csv:"PurchaseAllowed"`
	RedemptionAllowedRaw string `csv:"RedemptionAllowed"`
	SIPAllowedRaw        string `csv:"SIPAllowed"`
	MinPurchaseAmountRaw string `csv:"MinPurchaseAmt"`
	MinSIPAmountRaw      string `csv:"MinSIPAmt"`
}

// Normalize converts the raw CSV columns into typed fields.
func (s *SchemeMaster) Normalize() {
	s.PurchaseAllowed = s.PurchaseAllowedRaw == "Y"
	s.RedemptionAllowed = s.RedemptionAllowedRaw == "Y"
	s.SIPAllowed = s.SIPAllowedRaw == "Y"
	if d, err := decimal.NewFromString(s.MinPurchaseAmountRaw); err == nil {
		s.MinPurchaseAmount = &d
	}
	if d, err := decimal.NewFromString(s.MinSIPAmountRaw); err == nil {
		s.MinSIPAmount = &d
	}
}

// BankMaster lists banks usable per payment mode.
type BankMaster struct {
	BankCode      string
	BankName      string
	DirectAllowed bool
	NodalAllowed  bool
	NEFTAllowed   bool
	UPIAllowed    bool
	Active        bool
}
