package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
)

func newMandateService(env *testEnv) *MandateService {
	return NewMandateService(env.store, env.client, env.sessions, env.creds, zerolog.Nop())
}

func seedSubmittedMandate(t *testing.T, env *testEnv, id, exchangeID string) *models.Mandate {
	t.Helper()
	exch := exchangeID
	mandate := &models.Mandate{
		ID:                id,
		AdvisorID:         "ADV1",
		ClientID:          "CLIENT1",
		Type:              models.MandatePhysical,
		Status:            models.MandateSubmitted,
		Amount:            decimal.NewFromInt(25000),
		ExchangeMandateID: &exch,
	}
	require.NoError(t, env.store.CreateMandate(context.Background(), mandate))
	return mandate
}

func TestRegisterMandateSubmitted(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("MandateRegistration", "100|MND00042|MANDATE REGISTERED")
	svc := newMandateService(env)

	mandate, err := svc.Register(context.Background(), RegisterMandateInput{
		AdvisorID:     "ADV1",
		ClientID:      "CLIENT1",
		Type:          models.MandatePhysical,
		Amount:        decimal.NewFromInt(25000),
		BankAccountID: "ACC1",
		BankCode:      "HDFC",
	})
	require.NoError(t, err)

	assert.Equal(t, models.MandateSubmitted, mandate.Status)
	require.NotNil(t, mandate.ExchangeMandateID)
	assert.Equal(t, "MND00042", *mandate.ExchangeMandateID)
	assert.Nil(t, mandate.UMRN, "UMRN arrives only at approval")
}

// Scenario: the poll converts a SUBMITTED mandate to APPROVED and sets the
// UMRN exactly once; a second poll with the same answer changes nothing.
func TestRefreshStatusApprovesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.client.respondJSON("MandateStatus", exchange.MandateStatusResponse{
		Status: "100",
		Mandates: []exchange.MandateStatusDetail{{
			MandateID: "MND00042",
			Status:    "APPROVED",
			UMRN:      "UMRN000111222",
		}},
	})
	svc := newMandateService(env)

	seedSubmittedMandate(t, env, "m1", "MND00042")

	mandate, err := svc.RefreshStatus(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MandateApproved, mandate.Status)
	require.NotNil(t, mandate.UMRN)
	assert.Equal(t, "UMRN000111222", *mandate.UMRN)

	// Same answer again: a no-op, not a rewrite.
	again, err := svc.RefreshStatus(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MandateApproved, again.Status)
	assert.Equal(t, "UMRN000111222", *again.UMRN)

	stored, err := env.store.GetMandate(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MandateApproved, stored.Status)
}

func TestRefreshStatusDropsBackwardTransition(t *testing.T) {
	env := newTestEnv(t)
	env.client.respondJSON("MandateStatus", exchange.MandateStatusResponse{
		Status:   "100",
		Mandates: []exchange.MandateStatusDetail{{MandateID: "MND00042", Status: "REGISTERED"}},
	})
	svc := newMandateService(env)

	mandate := seedSubmittedMandate(t, env, "m1", "MND00042")
	mandate.Status = models.MandateApproved
	require.NoError(t, env.store.UpdateMandate(context.Background(), mandate))

	got, err := svc.RefreshStatus(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MandateApproved, got.Status, "APPROVED never regresses to SUBMITTED")
}

func TestAuthURLOnlyForENach(t *testing.T) {
	env := newTestEnv(t)
	svc := newMandateService(env)

	seedSubmittedMandate(t, env, "m1", "MND00042") // PHYSICAL

	_, err := svc.AuthURL(context.Background(), "m1")
	require.Error(t, err)

	var valErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestAuthURLCached(t *testing.T) {
	env := newTestEnv(t)
	env.client.respondJSON("ENachAuthURL", exchange.AuthURLResponse{
		Status:  "100",
		AuthURL: "https://enach.example/auth/1",
	})
	svc := newMandateService(env)

	mandate := seedSubmittedMandate(t, env, "m1", "MND00042")
	mandate.Type = models.MandateENach
	require.NoError(t, env.store.UpdateMandate(context.Background(), mandate))

	url, err := svc.AuthURL(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "https://enach.example/auth/1", url)

	calls := env.client.callCount()
	url2, err := svc.AuthURL(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, url, url2)
	assert.Equal(t, calls, env.client.callCount(), "second fetch served from the stored URL")
}

func TestShiftRequiresApproved(t *testing.T) {
	env := newTestEnv(t)
	svc := newMandateService(env)

	seedSubmittedMandate(t, env, "m1", "MND00042")

	_, err := svc.Shift(context.Background(), "m1")
	assert.ErrorIs(t, err, apperrors.ErrMandateNotApproved)
}

func TestShiftApprovedMandate(t *testing.T) {
	env := newTestEnv(t)
	env.client.respondJSON("MandateShift", map[string]string{"Status": "100"})
	svc := newMandateService(env)

	mandate := seedSubmittedMandate(t, env, "m1", "MND00042")
	mandate.Status = models.MandateApproved
	require.NoError(t, env.store.UpdateMandate(context.Background(), mandate))

	got, err := svc.Shift(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MandateShifted, got.Status)
	assert.True(t, got.Status.Terminal())
}
