package jobs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmf-gateway/internal/config"
	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/services"
	"starmf-gateway/internal/store"
)

// jobCreds resolves fixed credentials, failing for the listed advisors.
type jobCreds struct {
	failFor map[string]bool
}

func (f jobCreds) Resolve(_ context.Context, advisorID string) (*exchange.Credentials, error) {
	if f.failFor[advisorID] {
		return nil, apperrors.NewCredentialError(advisorID, "not configured", apperrors.ErrCredentialsNotConfigured)
	}
	return &exchange.Credentials{
		MemberCode: "10001",
		LoginID:    "login-" + advisorID,
		Password:   "pw",
		PassKey:    "pk",
		ARN:        "ARN-1",
	}, nil
}

// jobClient answers each endpoint with a canned body and counts calls per
// endpoint. Login endpoints are answered automatically.
type jobClient struct {
	mu        sync.Mutex
	responses map[string][]byte
	calls     map[string]int
}

func newJobClient() *jobClient {
	return &jobClient{
		responses: make(map[string][]byte),
		calls:     make(map[string]int),
	}
}

func (c *jobClient) respondJSON(endpointName string, v interface{}) {
	b, _ := json.Marshal(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[endpointName] = b
}

func (c *jobClient) callCount(endpointName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[endpointName]
}

func (c *jobClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *jobClient) Execute(_ context.Context, req exchange.Request) (*exchange.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.Endpoint.Name]++

	if body, ok := c.responses[req.Endpoint.Name]; ok {
		return &exchange.Envelope{StatusCode: 200, Body: body}, nil
	}
	switch req.Endpoint.Name {
	case "GetPassword", "GetPasswordAdditional":
		return &exchange.Envelope{StatusCode: 200, Body: []byte("100|JOBTOKEN")}, nil
	case "GetPasswordFileUpload", "GetPasswordMandate", "GetPasswordChildOrder":
		return &exchange.Envelope{StatusCode: 200, Body: []byte(`{"Status":"100","Token":"JOBTOKEN"}`)}, nil
	}
	return &exchange.Envelope{StatusCode: 200, Body: []byte(`{"Status":"100"}`)}, nil
}

type jobEnv struct {
	store  store.Store
	client *jobClient
	runner *Runner
}

func jobsTestConfig() config.JobsConfig {
	return config.JobsConfig{
		SessionRefreshInterval: 5 * time.Minute,
		OrderPollInterval:      15 * time.Minute,
		MandatePollInterval:    30 * time.Minute,
		AllotmentSyncInterval:  24 * time.Hour,
		SchemeSyncInterval:     168 * time.Hour,
		OrderPollBatch:         50,
		MandatePollBatch:       50,
	}
}

func newJobEnv(t *testing.T, mock bool, failFor ...string) *jobEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fail := make(map[string]bool)
	for _, a := range failFor {
		fail[a] = true
	}
	creds := jobCreds{failFor: fail}
	client := newJobClient()
	sessions := exchange.NewSessionManager(client, creds, st, zerolog.Nop())

	reports := services.NewReportService(st, client, sessions, creds, zerolog.Nop())
	mandates := services.NewMandateService(st, client, sessions, creds, zerolog.Nop())
	masters := services.NewMasterService(st, client, sessions, creds, zerolog.Nop())

	runner := NewRunner(st, sessions, reports, mandates, masters, jobsTestConfig(), mock, zerolog.Nop())
	return &jobEnv{store: st, client: client, runner: runner}
}

func seedOrderForPoll(t *testing.T, st store.Store, id, advisorID, exchangeNumber string) {
	t.Helper()
	amount := decimal.NewFromInt(1000)
	order := &models.Order{
		ID:              id,
		AdvisorID:       advisorID,
		ClientID:        "CLIENT1",
		Type:            models.OrderTypePurchase,
		Status:          models.OrderSubmitted,
		TransCode:       "NEW",
		SchemeCode:      "SCHEME-GR",
		BuySell:         "P",
		DPTxnMode:       "P",
		Amount:          &amount,
		ReferenceNumber: "REF-" + id,
	}
	if exchangeNumber != "" {
		order.ExchangeOrderNumber = &exchangeNumber
	}
	require.NoError(t, st.CreateOrder(context.Background(), order))
}

// Scenario: the order poll hits a credential failure for one advisor; the
// other advisors' orders in the same batch are still reconciled, and the
// failing advisor's orders are left untouched.
func TestPollOrderStatusIsolatesAdvisorFailure(t *testing.T) {
	env := newJobEnv(t, false, "ADV-X")
	env.client.respondJSON("OrderStatus", exchange.OrderStatusResponse{
		Status: "100",
		Orders: []exchange.OrderStatusDetail{{OrderNumber: "ANY", Status: "VALID"}},
	})

	seedOrderForPoll(t, env.store, "ox", "ADV-X", "EXCH-X")
	seedOrderForPoll(t, env.store, "oy", "ADV-Y", "EXCH-Y")
	seedOrderForPoll(t, env.store, "oz", "ADV-Z", "EXCH-Z")

	require.NoError(t, env.runner.PollOrderStatus(context.Background()),
		"one advisor's credential failure is not a job failure")

	x, err := env.store.GetOrder(context.Background(), "ox")
	require.NoError(t, err)
	assert.Equal(t, models.OrderSubmitted, x.Status, "failing advisor's order untouched")

	y, err := env.store.GetOrder(context.Background(), "oy")
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, y.Status)

	z, err := env.store.GetOrder(context.Background(), "oz")
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, z.Status)
}

func TestPollOrderStatusSkipsRestOfFailingAdvisor(t *testing.T) {
	env := newJobEnv(t, false, "ADV-X")
	env.client.respondJSON("OrderStatus", exchange.OrderStatusResponse{
		Status: "100",
		Orders: []exchange.OrderStatusDetail{{OrderNumber: "ANY", Status: "VALID"}},
	})

	// Several orders for the failing advisor: only the first may even be
	// attempted, the rest are skipped without a network call.
	seedOrderForPoll(t, env.store, "ox1", "ADV-X", "EXCH-X1")
	seedOrderForPoll(t, env.store, "ox2", "ADV-X", "EXCH-X2")
	seedOrderForPoll(t, env.store, "ox3", "ADV-X", "EXCH-X3")
	seedOrderForPoll(t, env.store, "oy", "ADV-Y", "EXCH-Y")

	require.NoError(t, env.runner.PollOrderStatus(context.Background()))

	assert.Equal(t, 1, env.client.callCount("OrderStatus"),
		"only the working advisor's order reached the exchange")
}

func TestPollMandateStatusIsolatesAdvisorFailure(t *testing.T) {
	env := newJobEnv(t, false, "ADV-X")
	env.client.respondJSON("MandateStatus", exchange.MandateStatusResponse{
		Status: "100",
		Mandates: []exchange.MandateStatusDetail{{
			MandateID: "ANY",
			Status:    "APPROVED",
			UMRN:      "UMRN000111222",
		}},
	})

	for _, m := range []struct{ id, advisor, exch string }{
		{"mx", "ADV-X", "MND-X"},
		{"my", "ADV-Y", "MND-Y"},
	} {
		exch := m.exch
		mandate := &models.Mandate{
			ID: m.id, AdvisorID: m.advisor, ClientID: "CLIENT1",
			Type: models.MandatePhysical, Status: models.MandateSubmitted,
			Amount: decimal.NewFromInt(25000), ExchangeMandateID: &exch,
		}
		require.NoError(t, env.store.CreateMandate(context.Background(), mandate))
	}

	require.NoError(t, env.runner.PollMandateStatus(context.Background()))

	x, err := env.store.GetMandate(context.Background(), "mx")
	require.NoError(t, err)
	assert.Equal(t, models.MandateSubmitted, x.Status)

	y, err := env.store.GetMandate(context.Background(), "my")
	require.NoError(t, err)
	assert.Equal(t, models.MandateApproved, y.Status)
	require.NotNil(t, y.UMRN)
	assert.Equal(t, "UMRN000111222", *y.UMRN)
}

// Mock mode reconciles against nothing: every job is a no-op that touches
// neither the exchange nor the store.
func TestJobsNoOpInMockMode(t *testing.T) {
	env := newJobEnv(t, true)
	seedOrderForPoll(t, env.store, "o1", "ADV1", "EXCH001")

	ctx := context.Background()
	require.NoError(t, env.runner.RefreshSessions(ctx))
	require.NoError(t, env.runner.PollOrderStatus(ctx))
	require.NoError(t, env.runner.PollMandateStatus(ctx))
	require.NoError(t, env.runner.SyncAllotments(ctx))
	require.NoError(t, env.runner.SyncSchemeMaster(ctx))

	assert.Equal(t, 0, env.client.totalCalls(), "no network traffic in mock mode")

	order, err := env.store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderSubmitted, order.Status)
}

func TestSchedulerTrigger(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var ran int
	s.Every(time.Hour, "probe", func(context.Context) error {
		ran++
		return nil
	})

	require.NoError(t, s.Trigger(context.Background(), "probe"))
	assert.Equal(t, 1, ran, "trigger runs the task immediately")

	err := s.Trigger(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestSchedulerRegisterWiresEveryJob(t *testing.T) {
	env := newJobEnv(t, true)
	s := NewScheduler(zerolog.Nop())
	env.runner.Register(s)

	names := s.Names()
	assert.ElementsMatch(t, []string{
		JobSessionRefresh, JobOrderPoll, JobMandatePoll, JobAllotmentSync, JobSchemeSync,
	}, names)

	// Every registered job is triggerable.
	for _, name := range names {
		require.NoError(t, s.Trigger(context.Background(), name))
	}
}
