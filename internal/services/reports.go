package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// ReportService reconciles local state against the exchange's reports:
// order status, allotments and the realized installments of systematic
// plans. It is the single writer used by the polling jobs.
type ReportService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	logger   zerolog.Logger
}

// NewReportService creates a report service.
func NewReportService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, logger zerolog.Logger) *ReportService {
	return &ReportService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		logger:   logger,
	}
}

// SyncOrderStatus queries the exchange for one order and applies the answer.
// Transitions are monotonic: a status that would move the order backwards or
// out of a terminal state is dropped with a warning, never applied.
func (s *ReportService) SyncOrderStatus(ctx context.Context, order *models.Order) error {
	if order.ExchangeOrderNumber == nil || order.Status.Terminal() {
		return nil
	}

	logger := logging.WithOrderID(logging.WithAdvisor(s.logger, order.AdvisorID), order.ID)

	resp, err := s.queryOrderStatus(ctx, order, exchange.EndpointOrderStatus)
	if err != nil {
		return err
	}
	if len(resp.Orders) == 0 {
		return nil
	}

	detail := resp.Orders[0]
	next := exchange.MapOrderStatus(detail.Status)
	if next == "" {
		return nil
	}

	// The caller's copy may predate a concurrent writer (a payment callback,
	// another job); validate and apply against the row as it is now.
	current, err := s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if next == current.Status {
		return nil
	}
	if !current.Status.CanTransition(next) {
		logger.Warn().
			Str("from", string(current.Status)).
			Str("to", string(next)).
			Msg("Dropping invalid order transition from exchange")
		return nil
	}

	expect := current.Status
	current.Status = next
	if detail.Remarks != "" {
		msg := detail.Remarks
		current.ResponseMessage = &msg
	}
	if next == models.OrderAllotted {
		applyAllotment(current, detail)
	}

	ok, err := s.store.UpdateOrderIfStatus(ctx, current, expect)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn().Str("to", string(next)).Msg("Order changed mid-poll; exchange answer dropped")
		return nil
	}
	*order = *current
	logger.Info().Str("status", string(next)).Msg("Order status reconciled")
	return nil
}

// SyncAllotment pulls the allotment statement for one order. Same monotonic
// rules as SyncOrderStatus; the allotment fields are only ever written on
// the transition into ALLOTTED.
func (s *ReportService) SyncAllotment(ctx context.Context, order *models.Order) error {
	if order.ExchangeOrderNumber == nil || order.Status.Terminal() {
		return nil
	}

	resp, err := s.queryOrderStatus(ctx, order, exchange.EndpointAllotmentStatement)
	if err != nil {
		return err
	}
	if len(resp.Orders) == 0 {
		return nil
	}

	detail := resp.Orders[0]
	if exchange.MapOrderStatus(detail.Status) != models.OrderAllotted {
		return nil
	}

	current, err := s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(models.OrderAllotted) {
		return nil
	}

	expect := current.Status
	current.Status = models.OrderAllotted
	applyAllotment(current, detail)

	ok, err := s.store.UpdateOrderIfStatus(ctx, current, expect)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	*order = *current
	logger := logging.WithOrderID(s.logger, order.ID)
	logger.Info().Msg("Allotment applied")
	return nil
}

func (s *ReportService) queryOrderStatus(ctx context.Context, order *models.Order, endpoint exchange.Endpoint) (*exchange.OrderStatusResponse, error) {
	creds, err := s.creds.Resolve(ctx, order.AdvisorID)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Token(ctx, order.AdvisorID, models.PurposeAdditional)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode": creds.MemberCode,
		"ClientCode": order.ClientID,
		"OrderNo":    *order.ExchangeOrderNumber,
		"Token":      token,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding order status request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  endpoint,
		APIName:   endpoint.Name,
		AdvisorID: order.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}

	var resp exchange.OrderStatusResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return nil, apperrors.Wrap(err, "decoding order status response")
	}
	if resp.Status != exchange.CodeSuccess {
		return nil, apperrors.NewExchangeError(resp.Status, resp.Remarks, nil)
	}
	return &resp, nil
}

// SyncChildOrders pulls the realized installments of a systematic plan and
// upserts them by installment number. Safe to re-run.
func (s *ReportService) SyncChildOrders(ctx context.Context, plan *models.Order) (int, error) {
	if plan.RegistrationNumber == nil {
		return 0, nil
	}

	creds, err := s.creds.Resolve(ctx, plan.AdvisorID)
	if err != nil {
		return 0, err
	}
	token, err := s.sessions.Token(ctx, plan.AdvisorID, models.PurposeChildOrder)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode": creds.MemberCode,
		"ClientCode": plan.ClientID,
		"RegnNo":     *plan.RegistrationNumber,
		"Token":      token,
	})
	if err != nil {
		return 0, apperrors.Wrap(err, "encoding child order request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointChildOrder,
		APIName:   "ChildOrderDetails",
		AdvisorID: plan.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return 0, err
	}

	var resp exchange.ChildOrderResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return 0, apperrors.Wrap(err, "decoding child order response")
	}
	if resp.Status != exchange.CodeSuccess {
		return 0, apperrors.NewExchangeError(resp.Status, resp.Remarks, nil)
	}

	applied := 0
	for _, detail := range resp.Orders {
		if detail.InstallmentNo < 1 || detail.OrderNumber == "" {
			continue
		}
		child := &models.ChildOrder{
			OrderID:             plan.ID,
			InstallmentNo:       detail.InstallmentNo,
			ExchangeOrderNumber: detail.OrderNumber,
			Status:              detail.Status,
			Amount:              parseDec(detail.Amount),
			Units:               parseDec(detail.Units),
			NAV:                 parseDec(detail.NAV),
		}
		if err := s.store.UpsertChildOrder(ctx, child); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func applyAllotment(order *models.Order, detail exchange.OrderStatusDetail) {
	order.AllottedUnits = parseDec(detail.AllottedUnits)
	order.AllottedNAV = parseDec(detail.AllottedNAV)
	order.AllottedAmount = parseDec(detail.AllottedAmount)
	if t, err := time.Parse("2006-01-02", detail.AllotmentDate); err == nil {
		order.AllottedAt = &t
	} else {
		now := timeNow()
		order.AllottedAt = &now
	}
}

func parseDec(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
