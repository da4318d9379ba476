package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// MandateService registers and tracks debit mandates.
type MandateService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	logger   zerolog.Logger
}

// NewMandateService creates a mandate service.
func NewMandateService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, logger zerolog.Logger) *MandateService {
	return &MandateService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		logger:   logger,
	}
}

// RegisterMandateInput describes a new mandate registration.
type RegisterMandateInput struct {
	AdvisorID     string
	ClientID      string
	Type          models.MandateType
	Amount        decimal.Decimal
	BankAccountID string
	BankCode      string
	StartDate     string // DD/MM/YYYY, exchange format
	EndDate       string
}

// Register submits a mandate registration. The mandate resolves to SUBMITTED
// with an exchange-assigned ID, or REJECTED.
func (s *MandateService) Register(ctx context.Context, input RegisterMandateInput) (*models.Mandate, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.Type != models.MandatePhysical && input.Type != models.MandateENach {
		return nil, apperrors.NewValidationError("type", string(input.Type), "unknown mandate type")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", input.Amount.String(), "must be positive")
	}
	if input.BankAccountID == "" || input.BankCode == "" {
		return nil, apperrors.NewValidationError("bankAccountId", input.BankAccountID, "bank account and bank code are required")
	}

	creds, err := s.creds.Resolve(ctx, input.AdvisorID)
	if err != nil {
		return nil, err
	}

	mandate := &models.Mandate{
		ID:        uuid.NewString(),
		AdvisorID: input.AdvisorID,
		ClientID:  input.ClientID,
		Type:      input.Type,
		Status:    models.MandateCreated,
		Amount:    input.Amount,
	}
	acct, bank := input.BankAccountID, input.BankCode
	mandate.BankAccountID = &acct
	mandate.BankCode = &bank

	if err := s.store.CreateMandate(ctx, mandate); err != nil {
		return nil, err
	}

	logger := logging.WithAdvisor(s.logger, input.AdvisorID)

	token, err := s.sessions.Token(ctx, input.AdvisorID, models.PurposeOrderEntry)
	if err != nil {
		return nil, err
	}

	mandateType := "N" // physical NACH
	if input.Type == models.MandateENach {
		mandateType = "E"
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointMandateRegistration,
		APIName:   "MandateRegistration",
		AdvisorID: input.AdvisorID,
		Body: []byte(exchange.JoinPipe(
			creds.MemberCode,
			input.ClientID,
			input.Amount.String(),
			mandateType,
			input.BankAccountID,
			input.BankCode,
			input.StartDate,
			input.EndDate,
			token,
		)),
		ContentType: "text/plain",
	})
	if err != nil {
		return nil, err
	}

	result := exchange.ParsePipe(string(env.Body))
	mandate.ResponseCode = &result.Code

	if result.Success {
		exchID := result.Field(0)
		mandate.Status = models.MandateSubmitted
		mandate.ExchangeMandateID = &exchID
		logger.Info().Str("mandate_id", mandate.ID).
			Str("exchange_mandate_id", exchID).
			Msg("Mandate registered")
	} else {
		mandate.Status = models.MandateRejected
		msg := result.Message
		mandate.ResponseMessage = &msg
		logger.Warn().Str("mandate_id", mandate.ID).
			Str("reason", result.Message).
			Msg("Mandate rejected by exchange")
	}

	if err := s.store.UpdateMandate(ctx, mandate); err != nil {
		return nil, err
	}
	return mandate, nil
}

// RefreshStatus queries the exchange for a mandate's current state and
// applies it. Transitions are monotonic: the UMRN is set exactly once at
// approval, and an exchange answer that would move the mandate backwards is
// dropped with a warning.
func (s *MandateService) RefreshStatus(ctx context.Context, mandateID string) (*models.Mandate, error) {
	mandate, err := s.store.GetMandate(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if mandate.ExchangeMandateID == nil {
		return mandate, nil
	}

	creds, err := s.creds.Resolve(ctx, mandate.AdvisorID)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Token(ctx, mandate.AdvisorID, models.PurposeMandateStatus)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode": creds.MemberCode,
		"ClientCode": mandate.ClientID,
		"MandateId":  *mandate.ExchangeMandateID,
		"Token":      token,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding mandate status request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointMandateStatus,
		APIName:   "MandateStatus",
		AdvisorID: mandate.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}

	var resp exchange.MandateStatusResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return nil, apperrors.Wrap(err, "decoding mandate status response")
	}
	if resp.Status != exchange.CodeSuccess {
		return nil, apperrors.NewExchangeError(resp.Status, resp.Remarks, nil)
	}
	if len(resp.Mandates) == 0 {
		return mandate, nil
	}

	detail := resp.Mandates[0]
	next := exchange.MapMandateStatus(detail.Status)
	if next == "" || next == mandate.Status {
		return mandate, nil
	}
	if !mandate.Status.CanTransition(next) {
		s.logger.Warn().
			Str("mandate_id", mandate.ID).
			Str("from", string(mandate.Status)).
			Str("to", string(next)).
			Msg("Dropping invalid mandate transition from exchange")
		return mandate, nil
	}

	mandate.Status = next
	if detail.Remarks != "" {
		msg := detail.Remarks
		mandate.ResponseMessage = &msg
	}
	if next == models.MandateApproved && mandate.UMRN == nil && detail.UMRN != "" {
		umrn := detail.UMRN
		mandate.UMRN = &umrn
	}

	if err := s.store.UpdateMandate(ctx, mandate); err != nil {
		return nil, err
	}
	return mandate, nil
}

// AuthURL fetches the e-NACH authentication URL a client uses to approve an
// electronic mandate.
func (s *MandateService) AuthURL(ctx context.Context, mandateID string) (string, error) {
	mandate, err := s.store.GetMandate(ctx, mandateID)
	if err != nil {
		return "", err
	}
	if mandate.Type != models.MandateENach {
		return "", apperrors.NewValidationError("type", string(mandate.Type), "auth URL applies to e-NACH mandates only")
	}
	if mandate.ExchangeMandateID == nil {
		return "", apperrors.ErrNotSubmitted
	}
	if mandate.AuthURL != nil {
		return *mandate.AuthURL, nil
	}

	creds, err := s.creds.Resolve(ctx, mandate.AdvisorID)
	if err != nil {
		return "", err
	}
	token, err := s.sessions.Token(ctx, mandate.AdvisorID, models.PurposeMandateStatus)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode": creds.MemberCode,
		"ClientCode": mandate.ClientID,
		"MandateId":  *mandate.ExchangeMandateID,
		"Token":      token,
	})
	if err != nil {
		return "", apperrors.Wrap(err, "encoding auth URL request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointENachAuthURL,
		APIName:   "EMandateAuthURL",
		AdvisorID: mandate.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return "", err
	}

	var resp exchange.AuthURLResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return "", apperrors.Wrap(err, "decoding auth URL response")
	}
	if resp.Status != exchange.CodeSuccess {
		return "", apperrors.NewExchangeError(resp.Status, resp.Remarks, nil)
	}

	mandate.AuthURL = &resp.AuthURL
	if err := s.store.UpdateMandate(ctx, mandate); err != nil {
		return "", err
	}
	return resp.AuthURL, nil
}

// Shift moves an approved mandate to another bank account. The exchange
// treats this as terminal for the old mandate.
func (s *MandateService) Shift(ctx context.Context, mandateID string) (*models.Mandate, error) {
	mandate, err := s.store.GetMandate(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if mandate.Status != models.MandateApproved {
		return nil, apperrors.ErrMandateNotApproved
	}

	creds, err := s.creds.Resolve(ctx, mandate.AdvisorID)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Token(ctx, mandate.AdvisorID, models.PurposeMandateStatus)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode": creds.MemberCode,
		"ClientCode": mandate.ClientID,
		"MandateId":  *mandate.ExchangeMandateID,
		"Token":      token,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding mandate shift request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointMandateShift,
		APIName:   "MandateShift",
		AdvisorID: mandate.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}

	result, err := exchange.ParseJSON(env.Body)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	mandate.Status = models.MandateShifted
	if err := s.store.UpdateMandate(ctx, mandate); err != nil {
		return nil, err
	}

	s.logger.Info().Str("mandate_id", mandate.ID).Msg("Mandate shifted")
	return mandate, nil
}

// Get retrieves a mandate by ID.
func (s *MandateService) Get(ctx context.Context, mandateID string) (*models.Mandate, error) {
	return s.store.GetMandate(ctx, mandateID)
}

// List returns mandates matching the filter.
func (s *MandateService) List(ctx context.Context, filter store.MandateFilter) ([]models.Mandate, error) {
	return s.store.ListMandates(ctx, filter)
}
