package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gateway_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestOrder(id, advisorID string, status models.OrderStatus) *models.Order {
	amount := decimal.NewFromInt(1000)
	return &models.Order{
		ID:              id,
		AdvisorID:       advisorID,
		ClientID:        "CLIENT1",
		Type:            models.OrderTypePurchase,
		Status:          status,
		TransCode:       "NEW",
		SchemeCode:      "SCHEME-GR",
		BuySell:         "P",
		Amount:          &amount,
		DPTxnMode:       "P",
		ReferenceNumber: "REF-" + id,
	}
}

func TestOrderRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := newTestOrder("o1", "ADV1", models.OrderCreated)
	units := decimal.RequireFromString("10.5")
	order.Units = &units
	folio := "FOLIO123"
	order.FolioNumber = &folio

	require.NoError(t, store.CreateOrder(ctx, order))

	got, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, models.OrderCreated, got.Status)
	assert.True(t, order.Amount.Equal(*got.Amount))
	assert.True(t, units.Equal(*got.Units))
	require.NotNil(t, got.FolioNumber)
	assert.Equal(t, "FOLIO123", *got.FolioNumber)
	assert.Nil(t, got.ExchangeOrderNumber)
	assert.Nil(t, got.AllottedAt)
}

func TestGetOrderNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestUpdateOrderIfStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := newTestOrder("o1", "ADV1", models.OrderCreated)
	require.NoError(t, store.CreateOrder(ctx, order))

	order.Status = models.OrderFailed
	ok, err := store.UpdateOrderIfStatus(ctx, order, models.OrderCreated)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second conditional update no longer matches.
	order.Status = models.OrderSubmitted
	ok, err = store.UpdateOrderIfStatus(ctx, order, models.OrderCreated)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, got.Status)
}

func TestListOrdersForPoll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	submitted := newTestOrder("o1", "ADV1", models.OrderSubmitted)
	exch := "EXCH001"
	submitted.ExchangeOrderNumber = &exch
	require.NoError(t, store.CreateOrder(ctx, submitted))

	// Terminal: excluded.
	allotted := newTestOrder("o2", "ADV1", models.OrderAllotted)
	exch2 := "EXCH002"
	allotted.ExchangeOrderNumber = &exch2
	require.NoError(t, store.CreateOrder(ctx, allotted))

	// No exchange number yet: excluded.
	created := newTestOrder("o3", "ADV1", models.OrderCreated)
	require.NoError(t, store.CreateOrder(ctx, created))

	orders, err := store.ListOrdersForPoll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
}

func TestListOrdersFilterAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateOrder(ctx, newTestOrder("o1", "ADV1", models.OrderSubmitted)))
	require.NoError(t, store.CreateOrder(ctx, newTestOrder("o2", "ADV1", models.OrderRejected)))
	require.NoError(t, store.CreateOrder(ctx, newTestOrder("o3", "ADV2", models.OrderSubmitted)))

	orders, total, err := store.ListOrders(ctx, OrderFilter{AdvisorID: "ADV1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, orders, 2)

	orders, total, err = store.ListOrders(ctx, OrderFilter{Status: models.OrderSubmitted})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, o := range orders {
		assert.Equal(t, models.OrderSubmitted, o.Status)
	}
}

func TestPaymentUniquePerOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateOrder(ctx, newTestOrder("o1", "ADV1", models.OrderSubmitted)))

	payment := &models.Payment{
		ID:      "p1",
		OrderID: "o1",
		Mode:    models.PaymentModeDirect,
		Status:  models.PaymentInitiated,
		Amount:  decimal.NewFromInt(1000),
	}
	require.NoError(t, store.CreatePayment(ctx, payment))

	dup := &models.Payment{
		ID:      "p2",
		OrderID: "o1",
		Mode:    models.PaymentModeUPI,
		Status:  models.PaymentInitiated,
		Amount:  decimal.NewFromInt(1000),
	}
	err := store.CreatePayment(ctx, dup)
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePayment)
}

func TestApplyPaymentCallbackAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := newTestOrder("o1", "ADV1", models.OrderPaymentPending)
	exch := "EXCH001"
	order.ExchangeOrderNumber = &exch
	require.NoError(t, store.CreateOrder(ctx, order))

	payment := &models.Payment{
		ID:      "p1",
		OrderID: "o1",
		Mode:    models.PaymentModeDirect,
		Status:  models.PaymentRedirected,
		Amount:  decimal.NewFromInt(1000),
	}
	require.NoError(t, store.CreatePayment(ctx, payment))

	payment.Status = models.PaymentSuccess
	order.Status = models.OrderPaymentSuccess
	require.NoError(t, store.ApplyPaymentCallback(ctx, payment, order))

	gotPayment, err := store.GetPaymentByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, gotPayment.Status)

	gotOrder, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentSuccess, gotOrder.Status)
}

func TestChildOrderUpsertIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateOrder(ctx, newTestOrder("plan1", "ADV1", models.OrderSubmitted)))

	amount := decimal.NewFromInt(500)
	child := &models.ChildOrder{
		OrderID:             "plan1",
		InstallmentNo:       1,
		ExchangeOrderNumber: "CH001",
		Status:              "VALID",
		Amount:              &amount,
	}
	require.NoError(t, store.UpsertChildOrder(ctx, child))

	// Re-sync with updated status must not duplicate the row.
	child.Status = "ALLOTTED"
	require.NoError(t, store.UpsertChildOrder(ctx, child))

	children, err := store.ListChildOrders(ctx, "plan1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "ALLOTTED", children[0].Status)
}

func TestMandatePollListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exch := "MND001"
	submitted := &models.Mandate{
		ID: "m1", AdvisorID: "ADV1", ClientID: "CLIENT1",
		Type: models.MandatePhysical, Status: models.MandateSubmitted,
		Amount: decimal.NewFromInt(25000), ExchangeMandateID: &exch,
	}
	require.NoError(t, store.CreateMandate(ctx, submitted))

	exch2 := "MND002"
	approved := &models.Mandate{
		ID: "m2", AdvisorID: "ADV1", ClientID: "CLIENT1",
		Type: models.MandatePhysical, Status: models.MandateApproved,
		Amount: decimal.NewFromInt(25000), ExchangeMandateID: &exch2,
	}
	require.NoError(t, store.CreateMandate(ctx, approved))

	mandates, err := store.ListMandatesForPoll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mandates, 1)
	assert.Equal(t, "m1", mandates[0].ID)
}

func TestCredentialUpsertAndListActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cred := &models.Credential{
		AdvisorID:   "ADV1",
		MemberCode:  "10001",
		LoginID:     "user1",
		ARN:         "ARN-123",
		PasswordEnc: "enc-pw",
		PassKeyEnc:  "enc-pk",
		Active:      true,
	}
	require.NoError(t, store.UpsertCredential(ctx, cred))

	// Replace in place.
	cred.LoginID = "user1b"
	require.NoError(t, store.UpsertCredential(ctx, cred))

	got, err := store.GetCredential(ctx, "ADV1")
	require.NoError(t, err)
	assert.Equal(t, "user1b", got.LoginID)

	inactive := &models.Credential{
		AdvisorID: "ADV2", MemberCode: "10002", LoginID: "user2",
		ARN: "ARN-456", PasswordEnc: "e", PassKeyEnc: "e", Active: false,
	}
	require.NoError(t, store.UpsertCredential(ctx, inactive))

	advisors, err := store.ListActiveAdvisors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADV1"}, advisors)
}

func TestSessionTokenReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	token, err := store.GetSessionToken(ctx, "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	assert.Nil(t, token, "cache miss is nil, not an error")

	first := &models.SessionToken{
		UserID: "ADV1", Purpose: models.PurposeOrderEntry, Token: "t1",
		IssuedAt: time.Now(), ExpiresAt: time.Now(),
	}
	require.NoError(t, store.PutSessionToken(ctx, first))

	second := *first
	second.Token = "t2"
	require.NoError(t, store.PutSessionToken(ctx, &second))

	got, err := store.GetSessionToken(ctx, "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t2", got.Token, "put replaces, never duplicates")

	require.NoError(t, store.DeleteSessionTokens(ctx, "ADV1"))
	got, err = store.GetSessionToken(ctx, "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSchemeUpsertAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scheme := &models.SchemeMaster{
		SchemeCode:      "ABC-GR",
		SchemeName:      "Alpha Bluechip Fund Growth",
		ISIN:            "INF00000001",
		AMCCode:         "ALPHA",
		PurchaseAllowed: true,
		SIPAllowed:      true,
		LastSyncedAt:    time.Now(),
	}
	require.NoError(t, store.UpsertScheme(ctx, scheme))

	schemes, total, err := store.SearchSchemes(ctx, "Bluechip", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, schemes, 1)
	assert.Equal(t, "ABC-GR", schemes[0].SchemeCode)
	assert.True(t, schemes[0].PurchaseAllowed)
}

func TestRegistrationUpsertAndFATCA(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	reg := &models.ClientRegistration{
		ClientID:    "CLIENT1",
		AdvisorID:   "ADV1",
		ClientCode:  "ABCDE1234F",
		Status:      models.RegistrationSubmitted,
		FATCAStatus: models.FATCAPending,
		TaxStatus:   "01",
	}
	require.NoError(t, store.UpsertRegistration(ctx, reg))

	got, err := store.GetRegistration(ctx, "CLIENT1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationSubmitted, got.Status)
	assert.Equal(t, models.FATCAPending, got.FATCAStatus)

	require.NoError(t, store.UpdateFATCAStatus(ctx, "CLIENT1", models.FATCAUploaded))
	got, err = store.GetRegistration(ctx, "CLIENT1")
	require.NoError(t, err)
	assert.Equal(t, models.FATCAUploaded, got.FATCAStatus)

	// Re-submission replaces the registration row, never duplicates it.
	reg.Status = models.RegistrationRejected
	require.NoError(t, store.UpsertRegistration(ctx, reg))
	got, err = store.GetRegistration(ctx, "CLIENT1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationRejected, got.Status)

	_, err = store.GetRegistration(ctx, "NOBODY")
	assert.ErrorIs(t, err, apperrors.ErrRegistrationNotFound)

	err = store.UpdateFATCAStatus(ctx, "NOBODY", models.FATCAFailed)
	assert.ErrorIs(t, err, apperrors.ErrRegistrationNotFound)
}
