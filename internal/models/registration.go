package models

import "time"

// RegistrationStatus is the UCC registration state at the exchange.
type RegistrationStatus string

const (
	RegistrationSubmitted RegistrationStatus = "SUBMITTED"
	RegistrationRejected  RegistrationStatus = "REJECTED"
)

// FATCAStatus is the FATCA declaration state for a registered client.
type FATCAStatus string

const (
	FATCAPending  FATCAStatus = "PENDING"
	FATCAUploaded FATCAStatus = "UPLOADED"
	FATCAFailed   FATCAStatus = "FAILED"
)

// ClientRegistration is a client's UCC record at the exchange. The client
// code is the PAN, which the exchange uses as the unique client code; at most
// one registration exists per client.
type ClientRegistration struct {
	ClientID   string
	AdvisorID  string
	ClientCode string

	Status      RegistrationStatus
	FATCAStatus FATCAStatus

	TaxStatus      string
	HoldingNature  string
	OccupationCode string

	ResponseCode    *string
	ResponseMessage *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
