package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// SystematicService registers and cancels systematic plans: SIP, XSIP, STP
// and SWP. A plan is stored as an order carrying a registration number; its
// realized installments arrive later as child orders.
type SystematicService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	refnums  *exchange.RefNumGenerator
	logger   zerolog.Logger
}

// NewSystematicService creates a systematic-plan service.
func NewSystematicService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, refnums *exchange.RefNumGenerator, logger zerolog.Logger) *SystematicService {
	return &SystematicService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		refnums:  refnums,
		logger:   logger,
	}
}

// PlanInput describes a systematic-plan registration.
type PlanInput struct {
	Type         models.OrderType
	AdvisorID    string
	ClientID     string
	SchemeCode   string
	TargetScheme string // STP destination
	Amount       decimal.Decimal
	Frequency    string // MONTHLY, WEEKLY, QUARTERLY
	StartDate    time.Time
	Installments int
	MandateID    string // required for XSIP
	FolioNumber  string
	FirstOrder   bool // place the first installment today
}

var planFrequencies = map[string]bool{
	"DAILY": true, "WEEKLY": true, "MONTHLY": true, "QUARTERLY": true,
}

// RegisterPlan validates and submits a systematic-plan registration. XSIP
// requires an APPROVED mandate, which is linked to the plan for its debits.
func (s *SystematicService) RegisterPlan(ctx context.Context, input PlanInput) (*models.Order, error) {
	switch input.Type {
	case models.OrderTypeSIP, models.OrderTypeXSIP, models.OrderTypeSTP, models.OrderTypeSWP:
	default:
		return nil, apperrors.NewValidationError("type", string(input.Type), "not a systematic plan type")
	}
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.SchemeCode == "" {
		return nil, apperrors.NewValidationError("schemeCode", input.SchemeCode, "must not be empty")
	}
	if input.Type == models.OrderTypeSTP && input.TargetScheme == "" {
		return nil, apperrors.NewValidationError("targetScheme", input.TargetScheme, "STP requires a target scheme")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", input.Amount.String(), "must be positive")
	}
	if !planFrequencies[input.Frequency] {
		return nil, apperrors.NewValidationError("frequency", input.Frequency, "unknown frequency")
	}
	if input.Installments < 1 {
		return nil, apperrors.NewValidationError("installments", input.Installments, "must be at least 1")
	}
	if input.StartDate.Before(timeNow().Truncate(24 * time.Hour)) {
		return nil, apperrors.NewValidationError("startDate", input.StartDate, "must not be in the past")
	}

	var mandateRef *string
	if input.Type == models.OrderTypeXSIP {
		if input.MandateID == "" {
			return nil, apperrors.NewValidationError("mandateId", input.MandateID, "XSIP requires a mandate")
		}
		mandate, err := s.store.GetMandate(ctx, input.MandateID)
		if err != nil {
			return nil, apperrors.ErrMandateNotApproved
		}
		if mandate.Status != models.MandateApproved || mandate.ExchangeMandateID == nil {
			return nil, apperrors.ErrMandateNotApproved
		}
		if mandate.ClientID != input.ClientID {
			return nil, apperrors.NewValidationError("mandateId", input.MandateID, "mandate belongs to another client")
		}
		mandateRef = mandate.ExchangeMandateID
	}

	creds, err := s.creds.Resolve(ctx, input.AdvisorID)
	if err != nil {
		return nil, err
	}

	amount := input.Amount
	freq := input.Frequency
	start := input.StartDate
	installments := input.Installments
	firstFlag := "N"
	if input.FirstOrder {
		firstFlag = "Y"
	}

	buySell := "P"
	if input.Type == models.OrderTypeSWP {
		buySell = "R"
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		AdvisorID:       input.AdvisorID,
		ClientID:        input.ClientID,
		Type:            input.Type,
		Status:          models.OrderCreated,
		TransCode:       "NEW",
		SchemeCode:      input.SchemeCode,
		BuySell:         buySell,
		Amount:          &amount,
		DPTxnMode:       "P",
		ReferenceNumber: s.refnums.Next(creds.MemberCode),
		MandateRef:      mandateRef,
		Frequency:       &freq,
		StartDate:       &start,
		Installments:    &installments,
		FirstOrderFlag:  &firstFlag,
	}
	if input.TargetScheme != "" {
		target := input.TargetScheme
		order.TargetScheme = &target
	}
	if input.FolioNumber != "" {
		folio := input.FolioNumber
		order.FolioNumber = &folio
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	logger := logging.WithOrderID(logging.WithAdvisor(s.logger, input.AdvisorID), order.ID)

	token, err := s.sessions.Token(ctx, input.AdvisorID, models.PurposeOrderEntry)
	if err != nil {
		return nil, s.markFailed(ctx, order, logger, err)
	}

	endpoint := exchange.EndpointSIPOrder
	if input.Type == models.OrderTypeXSIP {
		endpoint = exchange.EndpointXSIPOrder
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:    endpoint,
		APIName:     string(input.Type) + "Registration",
		AdvisorID:   input.AdvisorID,
		Body:        []byte(s.planBody(order, creds, token)),
		ContentType: "text/plain",
	})
	if err != nil {
		return nil, s.markFailed(ctx, order, logger, err)
	}

	result := exchange.ParsePipe(string(env.Body))
	now := timeNow()
	order.SubmittedAt = &now
	order.ResponseCode = &result.Code

	if result.Success {
		regNum := result.Field(0)
		order.Status = models.OrderSubmitted
		order.RegistrationNumber = &regNum
		logger.Info().
			Str("registration_number", regNum).
			Str("type", string(input.Type)).
			Msg("Systematic plan registered")
	} else {
		order.Status = models.OrderRejected
		msg := result.Message
		order.ResponseMessage = &msg
		logger.Warn().
			Str("code", result.Code).
			Str("reason", result.Message).
			Msg("Systematic plan rejected by exchange")
	}

	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelPlan submits a cancellation for a registered systematic plan. The
// plan stops producing new installments; already-realized child orders are
// unaffected.
func (s *SystematicService) CancelPlan(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.RegistrationNumber == nil {
		return nil, apperrors.ErrNotSubmitted
	}
	if !order.Status.CanTransition(models.OrderCancelled) {
		return nil, apperrors.NewOrderError(orderID, "cancel",
			"status "+string(order.Status)+" cannot be cancelled", apperrors.ErrInvalidOrderState)
	}

	creds, err := s.creds.Resolve(ctx, order.AdvisorID)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Token(ctx, order.AdvisorID, models.PurposeOrderEntry)
	if err != nil {
		return nil, err
	}

	cancel := *order
	cancel.TransCode = "CXL"
	endpoint := exchange.EndpointSIPOrder
	if order.Type == models.OrderTypeXSIP {
		endpoint = exchange.EndpointXSIPOrder
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:    endpoint,
		APIName:     "Cancel" + string(order.Type),
		AdvisorID:   order.AdvisorID,
		Body:        []byte(s.planBody(&cancel, creds, token)),
		ContentType: "text/plain",
	})
	if err != nil {
		return nil, err
	}

	result := exchange.ParsePipe(string(env.Body))
	if err := result.Err(); err != nil {
		return nil, err
	}

	order.Status = models.OrderCancelled
	order.ResponseCode = &result.Code
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}

	logger := logging.WithOrderID(s.logger, order.ID)
	logger.Info().Msg("Systematic plan cancelled")
	return order, nil
}

// ListChildOrders returns the realized installments of a plan.
func (s *SystematicService) ListChildOrders(ctx context.Context, orderID string) ([]models.ChildOrder, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListChildOrders(ctx, orderID)
}

func (s *SystematicService) markFailed(ctx context.Context, order *models.Order, logger zerolog.Logger, cause error) error {
	msg := cause.Error()
	order.Status = models.OrderFailed
	order.ResponseMessage = &msg

	if _, uerr := s.store.UpdateOrderIfStatus(ctx, order, models.OrderCreated); uerr != nil {
		logger.Error().Err(uerr).Msg("Failed to mark plan FAILED")
	} else {
		logger.Warn().Err(cause).Msg("Plan registration failed before exchange acceptance")
	}
	return cause
}

// planBody builds the pipe-delimited registration request. Field order
// follows the exchange's SIP/XSIP parameter list.
func (s *SystematicService) planBody(order *models.Order, creds *exchange.Credentials, token string) string {
	start := ""
	if order.StartDate != nil {
		start = order.StartDate.Format("02/01/2006")
	}
	return exchange.JoinPipe(
		order.TransCode,
		order.ReferenceNumber,
		deref(order.RegistrationNumber),
		creds.LoginID,
		creds.MemberCode,
		order.ClientID,
		order.SchemeCode,
		deref(order.TargetScheme),
		order.BuySell,
		decString(order.Amount),
		deref(order.Frequency),
		start,
		intString(order.Installments),
		deref(order.MandateRef),
		deref(order.FirstOrderFlag),
		deref(order.FolioNumber),
		creds.EUIN,
		creds.ARN,
		token,
	)
}
