package services

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// RegistrationService handles client UCC registration and the FATCA
// declaration that must accompany it before the client can transact.
type RegistrationService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	logger   zerolog.Logger
}

// NewRegistrationService creates a client-registration service.
func NewRegistrationService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, logger zerolog.Logger) *RegistrationService {
	return &RegistrationService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		logger:   logger,
	}
}

// RegisterClientInput carries the client details for UCC registration. The
// PAN doubles as the exchange client code.
type RegisterClientInput struct {
	AdvisorID string
	ClientID  string

	PAN         string
	FirstName   string
	LastName    string
	DateOfBirth string // DD/MM/YYYY, exchange format
	Email       string
	Mobile      string

	Address string
	City    string
	State   string
	Pincode string

	TaxStatus      string
	HoldingNature  string // defaults to SI (single)
	OccupationCode string // defaults to 01 (business)

	BankName      string
	AccountType   string // SB or CC
	AccountNumber string
	IFSC          string

	NomineeName     string
	NomineeRelation string

	// Modification re-submits an existing registration with changed details.
	Modification bool
}

// RegisterClient submits a UCC registration (or modification) to the
// exchange. The registration resolves to SUBMITTED or REJECTED; either way a
// row is kept so the outcome is queryable.
func (s *RegistrationService) RegisterClient(ctx context.Context, input RegisterClientInput) (*models.ClientRegistration, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.PAN == "" {
		return nil, apperrors.NewValidationError("pan", "", "PAN is required for registration")
	}
	if input.Email == "" {
		return nil, apperrors.NewValidationError("email", "", "email is required")
	}
	if input.DateOfBirth == "" {
		return nil, apperrors.NewValidationError("dateOfBirth", "", "date of birth is required")
	}
	if input.TaxStatus == "" {
		return nil, apperrors.NewValidationError("taxStatus", "", "tax status is required")
	}
	if input.HoldingNature == "" {
		input.HoldingNature = "SI"
	}
	if input.OccupationCode == "" {
		input.OccupationCode = "01"
	}

	creds, err := s.creds.Resolve(ctx, input.AdvisorID)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Token(ctx, input.AdvisorID, models.PurposeAdditional)
	if err != nil {
		return nil, err
	}

	transType := "NEW"
	if input.Modification {
		transType = "MOD"
	}
	accType := "SB"
	if input.AccountType == "CC" {
		accType = "CC"
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode":      creds.MemberCode,
		"ClientCode":      input.PAN,
		"Holding":         input.HoldingNature,
		"TaxStatus":       input.TaxStatus,
		"OccCode":         input.OccupationCode,
		"FirstName":       input.FirstName,
		"LastName":        input.LastName,
		"PAN":             input.PAN,
		"DOB":             input.DateOfBirth,
		"Email":           input.Email,
		"Mobile":          input.Mobile,
		"Address1":        input.Address,
		"City":            input.City,
		"State":           input.State,
		"Pincode":         input.Pincode,
		"Country":         "IN",
		"CommMode":        "E",
		"BankName":        input.BankName,
		"AccType":         accType,
		"AccNo":           input.AccountNumber,
		"IFSC":            input.IFSC,
		"NomineeName":     input.NomineeName,
		"NomineeRelation": input.NomineeRelation,
		"TransType":       transType,
		"Token":           token,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding registration request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointUCCRegistration,
		APIName:   "UCCRegistration",
		AdvisorID: input.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}

	result, err := exchange.ParseJSON(env.Body)
	if err != nil {
		return nil, err
	}

	reg := &models.ClientRegistration{
		ClientID:       input.ClientID,
		AdvisorID:      input.AdvisorID,
		ClientCode:     input.PAN,
		Status:         models.RegistrationSubmitted,
		FATCAStatus:    models.FATCAPending,
		TaxStatus:      input.TaxStatus,
		HoldingNature:  input.HoldingNature,
		OccupationCode: input.OccupationCode,
	}
	reg.ResponseCode = &result.Code
	if result.Message != "" {
		msg := result.Message
		reg.ResponseMessage = &msg
	}
	if !result.Success {
		reg.Status = models.RegistrationRejected
	}

	// A modification keeps the FATCA status already on record.
	if existing, err := s.store.GetRegistration(ctx, input.ClientID); err == nil {
		reg.FATCAStatus = existing.FATCAStatus
		reg.CreatedAt = existing.CreatedAt
	}

	if err := s.store.UpsertRegistration(ctx, reg); err != nil {
		return nil, err
	}

	logger := logging.WithAdvisor(s.logger, input.AdvisorID)
	logger.Info().
		Str("client_id", input.ClientID).
		Str("status", string(reg.Status)).
		Msg("Client registration submitted")
	return reg, nil
}

// Status returns a client's registration record.
func (s *RegistrationService) Status(ctx context.Context, clientID string) (*models.ClientRegistration, error) {
	return s.store.GetRegistration(ctx, clientID)
}

// FATCAInput carries the FATCA declaration for a registered client.
type FATCAInput struct {
	AdvisorID string
	ClientID  string

	TaxStatus          string // defaults to 01 (individual)
	SourceOfWealth     string // defaults to 02 (business)
	IncomeSlab         string // defaults to 31
	PEPStatus          string // defaults to N
	AddressType        string // defaults to 1 (residential)
	CountryOfBirth     string // defaults to IN
	CitizenshipCountry string
	NationalityCountry string
}

// UploadFATCA submits a client's FATCA declaration. The outcome is recorded
// on the registration row either way: UPLOADED on success, FAILED on an
// exchange rejection.
func (s *RegistrationService) UploadFATCA(ctx context.Context, input FATCAInput) error {
	reg, err := s.store.GetRegistration(ctx, input.ClientID)
	if err != nil {
		return err
	}
	if reg.AdvisorID != input.AdvisorID {
		return apperrors.ErrRegistrationNotFound
	}

	creds, err := s.creds.Resolve(ctx, input.AdvisorID)
	if err != nil {
		return err
	}
	token, err := s.sessions.Token(ctx, input.AdvisorID, models.PurposeAdditional)
	if err != nil {
		return err
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointFATCAUpload,
		APIName:   "FATCAUpload",
		AdvisorID: input.AdvisorID,
		Body: []byte(exchange.JoinPipe(
			creds.MemberCode,
			reg.ClientCode,
			defaultIfEmpty(input.TaxStatus, "01"),
			defaultIfEmpty(input.SourceOfWealth, "02"),
			defaultIfEmpty(input.IncomeSlab, "31"),
			defaultIfEmpty(input.PEPStatus, "N"),
			defaultIfEmpty(input.AddressType, "1"),
			defaultIfEmpty(input.CountryOfBirth, "IN"),
			defaultIfEmpty(input.CitizenshipCountry, "IN"),
			defaultIfEmpty(input.NationalityCountry, "IN"),
			token,
		)),
		ContentType: "text/plain",
	})
	if err != nil {
		return err
	}

	result := exchange.ParsePipe(string(env.Body))

	status := models.FATCAUploaded
	if !result.Success {
		status = models.FATCAFailed
	}
	if uerr := s.store.UpdateFATCAStatus(ctx, input.ClientID, status); uerr != nil {
		return uerr
	}

	logger := logging.WithAdvisor(s.logger, input.AdvisorID)
	logger.Info().
		Str("client_id", input.ClientID).
		Str("fatca_status", string(status)).
		Msg("FATCA declaration processed")

	if !result.Success {
		return result.Err()
	}
	return nil
}

func defaultIfEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
