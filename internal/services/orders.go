package services

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// OrderService places and tracks lumpsum orders.
type OrderService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	refnums  *exchange.RefNumGenerator
	logger   zerolog.Logger
}

// NewOrderService creates an order service.
func NewOrderService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, refnums *exchange.RefNumGenerator, logger zerolog.Logger) *OrderService {
	return &OrderService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		refnums:  refnums,
		logger:   logger,
	}
}

// PurchaseInput describes a lumpsum purchase.
type PurchaseInput struct {
	AdvisorID   string
	ClientID    string
	SchemeCode  string
	Amount      decimal.Decimal
	FolioNumber string
	DPTxnMode   string
}

// PlacePurchase validates and submits a lumpsum purchase order.
func (s *OrderService) PlacePurchase(ctx context.Context, input PurchaseInput) (*models.Order, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.SchemeCode == "" {
		return nil, apperrors.NewValidationError("schemeCode", input.SchemeCode, "must not be empty")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", input.Amount.String(), "must be positive")
	}

	amount := input.Amount
	buySellType := "FRESH"
	if input.FolioNumber != "" {
		buySellType = "ADDITIONAL"
	}

	order := &models.Order{
		AdvisorID:   input.AdvisorID,
		ClientID:    input.ClientID,
		Type:        models.OrderTypePurchase,
		TransCode:   "NEW",
		SchemeCode:  input.SchemeCode,
		BuySell:     "P",
		BuySellType: &buySellType,
		Amount:      &amount,
		DPTxnMode:   dpTxnModeOrDefault(input.DPTxnMode),
	}
	if input.FolioNumber != "" {
		folio := input.FolioNumber
		order.FolioNumber = &folio
	}

	return s.submit(ctx, order, exchange.EndpointOrderEntry)
}

// RedemptionInput describes a lumpsum redemption. Exactly one of Amount or
// Units must be set.
type RedemptionInput struct {
	AdvisorID   string
	ClientID    string
	SchemeCode  string
	Amount      *decimal.Decimal
	Units       *decimal.Decimal
	FolioNumber string
	DPTxnMode   string
}

// PlaceRedemption validates and submits a redemption order.
func (s *OrderService) PlaceRedemption(ctx context.Context, input RedemptionInput) (*models.Order, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.SchemeCode == "" {
		return nil, apperrors.NewValidationError("schemeCode", input.SchemeCode, "must not be empty")
	}
	if err := validateAmountOrUnits(input.Amount, input.Units); err != nil {
		return nil, err
	}

	order := &models.Order{
		AdvisorID:  input.AdvisorID,
		ClientID:   input.ClientID,
		Type:       models.OrderTypeRedemption,
		TransCode:  "NEW",
		SchemeCode: input.SchemeCode,
		BuySell:    "R",
		Amount:     input.Amount,
		Units:      input.Units,
		DPTxnMode:  dpTxnModeOrDefault(input.DPTxnMode),
	}
	if input.FolioNumber != "" {
		folio := input.FolioNumber
		order.FolioNumber = &folio
	}

	return s.submit(ctx, order, exchange.EndpointOrderEntry)
}

// SwitchInput describes a switch between two schemes of the same AMC.
type SwitchInput struct {
	AdvisorID    string
	ClientID     string
	SchemeCode   string
	TargetScheme string
	Amount       *decimal.Decimal
	Units        *decimal.Decimal
	FolioNumber  string
}

// PlaceSwitch validates and submits a switch order.
func (s *OrderService) PlaceSwitch(ctx context.Context, input SwitchInput) (*models.Order, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.SchemeCode == "" || input.TargetScheme == "" {
		return nil, apperrors.NewValidationError("targetScheme", input.TargetScheme, "source and target schemes are required")
	}
	if input.SchemeCode == input.TargetScheme {
		return nil, apperrors.NewValidationError("targetScheme", input.TargetScheme, "must differ from source scheme")
	}
	if err := validateAmountOrUnits(input.Amount, input.Units); err != nil {
		return nil, err
	}

	target := input.TargetScheme
	order := &models.Order{
		AdvisorID:    input.AdvisorID,
		ClientID:     input.ClientID,
		Type:         models.OrderTypeSwitch,
		TransCode:    "NEW",
		SchemeCode:   input.SchemeCode,
		TargetScheme: &target,
		BuySell:      "P",
		Amount:       input.Amount,
		Units:        input.Units,
		DPTxnMode:    dpTxnModeOrDefault(""),
	}
	if input.FolioNumber != "" {
		folio := input.FolioNumber
		order.FolioNumber = &folio
	}

	return s.submit(ctx, order, exchange.EndpointSwitchOrder)
}

// SpreadInput describes a spread (buy today, sell on a fixed future date)
// order.
type SpreadInput struct {
	AdvisorID      string
	ClientID       string
	SchemeCode     string
	Amount         decimal.Decimal
	RedemptionDate string
}

// PlaceSpread validates and submits a spread order.
func (s *OrderService) PlaceSpread(ctx context.Context, input SpreadInput) (*models.Order, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.NewValidationError("clientId", input.ClientID, "advisor and client are required")
	}
	if input.SchemeCode == "" {
		return nil, apperrors.NewValidationError("schemeCode", input.SchemeCode, "must not be empty")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", input.Amount.String(), "must be positive")
	}
	if input.RedemptionDate == "" {
		return nil, apperrors.NewValidationError("redemptionDate", input.RedemptionDate, "must not be empty")
	}

	amount := input.Amount
	order := &models.Order{
		AdvisorID:  input.AdvisorID,
		ClientID:   input.ClientID,
		Type:       models.OrderTypeSpread,
		TransCode:  "NEW",
		SchemeCode: input.SchemeCode,
		BuySell:    "P",
		Amount:     &amount,
		DPTxnMode:  dpTxnModeOrDefault(""),
	}

	return s.submit(ctx, order, exchange.EndpointSpreadOrder)
}

// submit persists the order in CREATED, calls the exchange and resolves the
// row to SUBMITTED, REJECTED or FAILED before returning. A caller never
// observes a CREATED order through this path.
func (s *OrderService) submit(ctx context.Context, order *models.Order, endpoint exchange.Endpoint) (*models.Order, error) {
	creds, err := s.creds.Resolve(ctx, order.AdvisorID)
	if err != nil {
		return nil, err
	}

	order.ID = uuid.NewString()
	order.Status = models.OrderCreated
	order.ReferenceNumber = s.refnums.Next(creds.MemberCode)

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	logger := logging.WithOrderID(logging.WithAdvisor(s.logger, order.AdvisorID), order.ID)

	token, err := s.sessions.Token(ctx, order.AdvisorID, models.PurposeOrderEntry)
	if err != nil {
		return nil, s.markFailed(ctx, order, logger, err)
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:    endpoint,
		APIName:     string(order.Type),
		AdvisorID:   order.AdvisorID,
		Body:        []byte(orderEntryBody(order, creds, token)),
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
		exchNum := result.Field(0)
		order.Status = models.OrderSubmitted
		order.ExchangeOrderNumber = &exchNum
		if msg := result.Field(1); msg != "" {
			order.ResponseMessage = &msg
		}
		logger.Info().
			Str("exchange_order_number", exchNum).
			Str("type", string(order.Type)).
			Msg("Order submitted")
	} else {
		order.Status = models.OrderRejected
		msg := result.Message
		order.ResponseMessage = &msg
		logger.Warn().
			Str("code", result.Code).
			Str("reason", result.Message).
			Msg("Order rejected by exchange")
	}

	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// markFailed resolves a CREATED order to FAILED after a pre-submission or
// transport error. The conditional update means a concurrent resolution of
// the same order wins and this becomes a no-op.
func (s *OrderService) markFailed(ctx context.Context, order *models.Order, logger zerolog.Logger, cause error) error {
	msg := cause.Error()
	order.Status = models.OrderFailed
	order.ResponseMessage = &msg

	if _, uerr := s.store.UpdateOrderIfStatus(ctx, order, models.OrderCreated); uerr != nil {
		logger.Error().Err(uerr).Msg("Failed to mark order FAILED")
	} else {
		logger.Warn().Err(cause).Msg("Order failed before exchange acceptance")
	}
	return cause
}

// Cancel submits a cancellation for an order the exchange has accepted.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ExchangeOrderNumber == nil {
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
	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:    exchange.EndpointOrderEntry,
		APIName:     "CancelOrder",
		AdvisorID:   order.AdvisorID,
		Body:        []byte(orderEntryBody(&cancel, creds, token)),
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
	logger.Info().Msg("Order cancelled")
	return order, nil
}

// Get retrieves an order by ID.
func (s *OrderService) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// List returns orders matching the filter with a total count.
func (s *OrderService) List(ctx context.Context, filter store.OrderFilter) ([]models.Order, int, error) {
	return s.store.ListOrders(ctx, filter)
}

// orderEntryBody builds the pipe-delimited order-entry request. Field order
// follows the exchange's order-entry parameter list.
func orderEntryBody(order *models.Order, creds *exchange.Credentials, token string) string {
	fields := []string{
		order.TransCode,
		order.ReferenceNumber,
		deref(order.ExchangeOrderNumber),
		creds.LoginID,
		creds.MemberCode,
		order.ClientID,
		order.SchemeCode,
		order.BuySell,
		deref(order.BuySellType),
		order.DPTxnMode,
		decString(order.Amount),
		decString(order.Units),
		deref(order.FolioNumber),
		deref(order.TargetScheme),
		creds.EUIN,
		creds.ARN,
		token,
	}
	return exchange.JoinPipe(fields...)
}

func validateAmountOrUnits(amount, units *decimal.Decimal) error {
	if (amount == nil) == (units == nil) {
		return apperrors.NewValidationError("amount", nil, "exactly one of amount or units must be set")
	}
	if amount != nil && !amount.IsPositive() {
		return apperrors.NewValidationError("amount", amount.String(), "must be positive")
	}
	if units != nil && !units.IsPositive() {
		return apperrors.NewValidationError("units", units.String(), "must be positive")
	}
	return nil
}

func dpTxnModeOrDefault(mode string) string {
	if mode == "" {
		return "P" // physical
	}
	return mode
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func intString(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}
