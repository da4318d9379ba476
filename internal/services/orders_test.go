package services

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
)

func newOrderService(env *testEnv) *OrderService {
	return NewOrderService(env.store, env.client, env.sessions, env.creds,
		exchange.NewRefNumGenerator(), zerolog.Nop())
}

func TestPlacePurchaseSubmitted(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("OrderEntry", "100|20260001234|ORDER CONFIRMED")
	svc := newOrderService(env)

	order, err := svc.PlacePurchase(context.Background(), PurchaseInput{
		AdvisorID:  "ADV1",
		ClientID:   "CLIENT1",
		SchemeCode: "SCHEME-GR",
		Amount:     decimal.NewFromInt(5000),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderSubmitted, order.Status)
	require.NotNil(t, order.ExchangeOrderNumber)
	assert.Equal(t, "20260001234", *order.ExchangeOrderNumber)
	assert.True(t, strings.HasPrefix(order.ReferenceNumber, "10001"), "reference carries member code")
	assert.NotNil(t, order.SubmittedAt)

	// The resolved state is persisted, not just returned.
	stored, err := env.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderSubmitted, stored.Status)
}

func TestPlacePurchaseRejectedByExchange(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("OrderEntry", "101|INVALID SCHEME CODE")
	svc := newOrderService(env)

	order, err := svc.PlacePurchase(context.Background(), PurchaseInput{
		AdvisorID:  "ADV1",
		ClientID:   "CLIENT1",
		SchemeCode: "BAD",
		Amount:     decimal.NewFromInt(5000),
	})
	require.NoError(t, err, "a rejection is an outcome, not an error")

	assert.Equal(t, models.OrderRejected, order.Status)
	require.NotNil(t, order.ResponseMessage)
	assert.Equal(t, "INVALID SCHEME CODE", *order.ResponseMessage)
}

func TestPlacePurchaseValidationBeforeNetwork(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env)

	_, err := svc.PlacePurchase(context.Background(), PurchaseInput{
		AdvisorID:  "ADV1",
		ClientID:   "CLIENT1",
		SchemeCode: "SCHEME-GR",
		Amount:     decimal.Zero,
	})
	require.Error(t, err)

	var valErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
	assert.Equal(t, 0, env.client.callCount(), "validation failures never reach the wire")
}

func TestPlacePurchaseTransportFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	env.client.fail("OrderEntry", apperrors.NewTransportError("OrderEntry", "/x", apperrors.ErrTimeout))
	svc := newOrderService(env)

	_, err := svc.PlacePurchase(context.Background(), PurchaseInput{
		AdvisorID:  "ADV1",
		ClientID:   "CLIENT1",
		SchemeCode: "SCHEME-GR",
		Amount:     decimal.NewFromInt(5000),
	})
	require.Error(t, err)

	// The CREATED row resolved to FAILED rather than dangling.
	orders, _, lerr := env.store.ListOrders(context.Background(), listAll())
	require.NoError(t, lerr)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderFailed, orders[0].Status)
}

func TestPlaceRedemptionAmountXorUnits(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env)

	amount := decimal.NewFromInt(1000)
	units := decimal.RequireFromString("10.5")

	_, err := svc.PlaceRedemption(context.Background(), RedemptionInput{
		AdvisorID: "ADV1", ClientID: "CLIENT1", SchemeCode: "S",
		Amount: &amount, Units: &units,
	})
	assert.Error(t, err, "both set is rejected")

	_, err = svc.PlaceRedemption(context.Background(), RedemptionInput{
		AdvisorID: "ADV1", ClientID: "CLIENT1", SchemeCode: "S",
	})
	assert.Error(t, err, "neither set is rejected")

	env.client.respond("OrderEntry", "100|20260009999")
	order, err := svc.PlaceRedemption(context.Background(), RedemptionInput{
		AdvisorID: "ADV1", ClientID: "CLIENT1", SchemeCode: "S", Units: &units,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderSubmitted, order.Status)
}

func TestPlaceSwitchRequiresDistinctSchemes(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env)

	amount := decimal.NewFromInt(1000)
	_, err := svc.PlaceSwitch(context.Background(), SwitchInput{
		AdvisorID: "ADV1", ClientID: "CLIENT1",
		SchemeCode: "SAME", TargetScheme: "SAME", Amount: &amount,
	})
	assert.Error(t, err)
	assert.Equal(t, 0, env.client.callCount())
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("OrderEntry", "100|20260001234|CANCELLED")
	svc := newOrderService(env)

	seedSubmittedOrder(t, env.store, "o1", "ADV1", "20260001234", decimal.NewFromInt(1000))

	order, err := svc.Cancel(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)
}

func TestCancelRequiresExchangeNumber(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env)

	seedSubmittedOrder(t, env.store, "o1", "ADV1", "", decimal.NewFromInt(1000))

	_, err := svc.Cancel(context.Background(), "o1")
	assert.ErrorIs(t, err, apperrors.ErrNotSubmitted)
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env)

	order := seedSubmittedOrder(t, env.store, "o1", "ADV1", "20260001234", decimal.NewFromInt(1000))
	order.Status = models.OrderAllotted
	require.NoError(t, env.store.UpdateOrder(context.Background(), order))

	_, err := svc.Cancel(context.Background(), "o1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderState)
	assert.Equal(t, 0, env.client.callCount())
}

// Mock-mode shape check: the mock client produces the same resolved states
// as the live wire without any network dial.
func TestPlacePurchaseAgainstMockClient(t *testing.T) {
	st := newTestStore(t)
	mock := exchange.NewMockClient(zerolog.Nop())
	creds := fakeCreds{}
	sessions := exchange.NewSessionManager(mock, creds, st, zerolog.Nop())
	svc := NewOrderService(st, mock, sessions, creds, exchange.NewRefNumGenerator(), zerolog.Nop())

	order, err := svc.PlacePurchase(context.Background(), PurchaseInput{
		AdvisorID:  "ADV1",
		ClientID:   "CLIENT1",
		SchemeCode: "MOCK-GR",
		Amount:     decimal.NewFromInt(5000),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderSubmitted, order.Status)
	require.NotNil(t, order.ExchangeOrderNumber)
	assert.True(t, strings.HasPrefix(*order.ExchangeOrderNumber, "MOCK"))
}
