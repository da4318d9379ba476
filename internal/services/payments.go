package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// PaymentService initiates payments and applies gateway callbacks.
type PaymentService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	logger   zerolog.Logger
}

// NewPaymentService creates a payment service.
func NewPaymentService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		logger:   logger,
	}
}

// PaymentInput describes a payment initiation for an accepted order.
type PaymentInput struct {
	OrderID  string
	Mode     models.PaymentMode
	BankCode string
}

// Initiate starts the payment for an order. Every validation runs before any
// network call; the INITIATED row is written before the exchange is touched
// so a crash mid-call leaves an auditable record.
func (s *PaymentService) Initiate(ctx context.Context, input PaymentInput) (*models.Payment, error) {
	if !input.Mode.Valid() {
		return nil, apperrors.NewValidationError("mode", string(input.Mode), "unknown payment mode")
	}

	order, err := s.store.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ExchangeOrderNumber == nil {
		return nil, apperrors.ErrNotSubmitted
	}
	if !order.Status.CanTransition(models.OrderPaymentPending) &&
		order.Status != models.OrderPaymentPending {
		return nil, apperrors.NewOrderError(order.ID, "payment",
			"status "+string(order.Status)+" does not accept payment", apperrors.ErrInvalidOrderState)
	}
	if order.Amount == nil || !order.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", nil, "order has no payable amount")
	}

	if existing, err := s.store.GetPaymentByOrder(ctx, order.ID); err == nil {
		if existing.Status != models.PaymentFailed {
			return nil, apperrors.ErrDuplicatePayment
		}
	} else if !apperrors.Is(err, apperrors.ErrPaymentNotFound) {
		return nil, err
	}

	payment := &models.Payment{
		ID:      uuid.NewString(),
		OrderID: order.ID,
		Mode:    input.Mode,
		Status:  models.PaymentInitiated,
		Amount:  *order.Amount,
	}
	if input.BankCode != "" {
		bank := input.BankCode
		payment.BankCode = &bank
	}

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicatePayment) {
			// A FAILED attempt owns the unique order slot; retry reuses it.
			return s.retryFailedPayment(ctx, order, input)
		}
		return nil, err
	}

	return s.callGateway(ctx, order, payment)
}

// retryFailedPayment reuses the existing FAILED payment row for a new
// attempt.
func (s *PaymentService) retryFailedPayment(ctx context.Context, order *models.Order, input PaymentInput) (*models.Payment, error) {
	payment, err := s.store.GetPaymentByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	payment.Mode = input.Mode
	payment.Status = models.PaymentInitiated
	payment.RedirectURL = nil
	payment.ResponseCode = nil
	payment.ResponseMessage = nil
	if input.BankCode != "" {
		bank := input.BankCode
		payment.BankCode = &bank
	}
	if ok, err := s.store.UpdatePaymentIfStatus(ctx, payment, models.PaymentFailed); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperrors.ErrDuplicatePayment
	}
	return s.callGateway(ctx, order, payment)
}

func (s *PaymentService) callGateway(ctx context.Context, order *models.Order, payment *models.Payment) (*models.Payment, error) {
	logger := logging.WithOrderID(logging.WithAdvisor(s.logger, order.AdvisorID), order.ID)

	creds, err := s.creds.Resolve(ctx, order.AdvisorID)
	if err != nil {
		return nil, s.markPaymentFailed(ctx, payment, logger, err)
	}
	token, err := s.sessions.Token(ctx, order.AdvisorID, models.PurposeAdditional)
	if err != nil {
		return nil, s.markPaymentFailed(ctx, payment, logger, err)
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode":  creds.MemberCode,
		"ClientCode":  order.ClientID,
		"OrderNo":     *order.ExchangeOrderNumber,
		"TotalAmount": payment.Amount.String(),
		"PaymentMode": string(payment.Mode),
		"BankCode":    derefOr(payment.BankCode, ""),
		"Token":       token,
	})
	if err != nil {
		return nil, s.markPaymentFailed(ctx, payment, logger, apperrors.Wrap(err, "encoding payment request"))
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointPayment,
		APIName:   "PaymentGatewayAPI",
		AdvisorID: order.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return nil, s.markPaymentFailed(ctx, payment, logger, err)
	}

	var resp exchange.PaymentResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return nil, s.markPaymentFailed(ctx, payment, logger, apperrors.Wrap(err, "decoding payment response"))
	}

	payment.ResponseCode = &resp.Status
	if resp.Status != exchange.CodeSuccess {
		payment.Status = models.PaymentFailed
		payment.ResponseMessage = &resp.Remarks
		if err := s.store.UpdatePayment(ctx, payment); err != nil {
			return nil, err
		}
		return nil, apperrors.NewExchangeError(resp.Status, resp.Remarks, nil)
	}

	payment.Status = models.PaymentRedirected
	payment.RedirectURL = &resp.ResponseString
	if err := s.store.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}

	if order.Status.CanTransition(models.OrderPaymentPending) {
		order.Status = models.OrderPaymentPending
		if err := s.store.UpdateOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	logger.Info().Str("payment_id", payment.ID).Msg("Payment redirected to bank")
	return payment, nil
}

func (s *PaymentService) markPaymentFailed(ctx context.Context, payment *models.Payment, logger zerolog.Logger, cause error) error {
	msg := cause.Error()
	payment.Status = models.PaymentFailed
	payment.ResponseMessage = &msg

	if _, uerr := s.store.UpdatePaymentIfStatus(ctx, payment, models.PaymentInitiated); uerr != nil {
		logger.Error().Err(uerr).Msg("Failed to mark payment FAILED")
	} else {
		logger.Warn().Err(cause).Msg("Payment failed before redirect")
	}
	return cause
}

// Callback is the bank's payment-outcome notification, delivered through the
// HTTP callback endpoint. Field casing varies across banks.
type Callback struct {
	OrderNumber    string
	Status         string
	TransactionRef string
	Message        string
}

// HandleCallback applies a payment-outcome callback. It is idempotent:
// re-delivery of an already-applied outcome is a no-op, and a callback for
// an unknown order is acknowledged without being processed so the bank stops
// retrying.
func (s *PaymentService) HandleCallback(ctx context.Context, cb Callback) (bool, error) {
	order, err := s.store.GetOrderByExchangeNumber(ctx, cb.OrderNumber)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrOrderNotFound) {
			s.logger.Warn().Str("order_number", cb.OrderNumber).Msg("Payment callback for unknown order")
			return false, nil
		}
		return false, err
	}

	payment, err := s.store.GetPaymentByOrder(ctx, order.ID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrPaymentNotFound) {
			s.logger.Warn().Str("order_number", cb.OrderNumber).Msg("Payment callback without initiated payment")
			return false, nil
		}
		return false, err
	}

	if payment.Status.Terminal() {
		return true, nil
	}

	success := cb.Status == exchange.CodeSuccess || strings.EqualFold(cb.Status, "SUCCESS")

	now := timeNow()
	if success {
		payment.Status = models.PaymentSuccess
		payment.PaidAt = &now
	} else {
		payment.Status = models.PaymentFailed
	}
	if cb.TransactionRef != "" {
		ref := cb.TransactionRef
		payment.TransactionRef = &ref
	}
	if cb.Message != "" {
		msg := cb.Message
		payment.ResponseMessage = &msg
	}

	next := models.OrderPaymentSuccess
	if !success {
		next = models.OrderPaymentFailed
	}
	if order.Status.CanTransition(next) {
		order.Status = next
	}

	if err := s.store.ApplyPaymentCallback(ctx, payment, order); err != nil {
		return false, err
	}

	logger := logging.WithOrderID(s.logger, order.ID)
	logger.Info().
		Bool("success", success).
		Msg("Payment callback applied")
	return true, nil
}

// GetByOrder returns the payment attached to an order.
func (s *PaymentService) GetByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	return s.store.GetPaymentByOrder(ctx, orderID)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
