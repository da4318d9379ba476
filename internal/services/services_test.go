package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/security"
	"starmf-gateway/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "services_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestCipher(t *testing.T) *security.FieldCipher {
	t.Helper()
	salt := make([]byte, security.SaltSize)
	cipher, err := security.NewFieldCipher("test-master-key", salt)
	require.NoError(t, err)
	return cipher
}

// fakeCreds resolves fixed credentials, optionally failing for specific
// advisors to simulate missing or undecryptable credential sets.
type fakeCreds struct {
	failFor map[string]bool
}

func (f fakeCreds) Resolve(_ context.Context, advisorID string) (*exchange.Credentials, error) {
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

// scriptedClient answers each endpoint with a canned body and records every
// call. Login endpoints are answered automatically.
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     []string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (c *scriptedClient) respond(endpointName string, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[endpointName] = []byte(body)
}

func (c *scriptedClient) respondJSON(endpointName string, v interface{}) {
	b, _ := json.Marshal(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[endpointName] = b
}

func (c *scriptedClient) fail(endpointName string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[endpointName] = err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedClient) Execute(_ context.Context, req Request) (*exchange.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req.Endpoint.Name)

	if err, ok := c.errs[req.Endpoint.Name]; ok {
		return nil, err
	}
	if body, ok := c.responses[req.Endpoint.Name]; ok {
		return &exchange.Envelope{StatusCode: 200, Body: body}, nil
	}

	switch req.Endpoint.Name {
	case "GetPassword", "GetPasswordAdditional":
		return &exchange.Envelope{StatusCode: 200, Body: []byte("100|TESTTOKEN")}, nil
	case "GetPasswordFileUpload", "GetPasswordMandate", "GetPasswordChildOrder":
		return &exchange.Envelope{StatusCode: 200, Body: []byte(`{"Status":"100","Token":"TESTTOKEN"}`)}, nil
	}
	return &exchange.Envelope{StatusCode: 200, Body: []byte(`{"Status":"100"}`)}, nil
}

// Request aliases the exchange request type for the fake client signature.
type Request = exchange.Request

type testEnv struct {
	store    store.Store
	client   *scriptedClient
	sessions *exchange.SessionManager
	creds    fakeCreds
}

func newTestEnv(t *testing.T, failFor ...string) *testEnv {
	t.Helper()
	fail := make(map[string]bool)
	for _, a := range failFor {
		fail[a] = true
	}
	creds := fakeCreds{failFor: fail}
	st := newTestStore(t)
	client := newScriptedClient()
	sessions := exchange.NewSessionManager(client, creds, st, zerolog.Nop())
	return &testEnv{store: st, client: client, sessions: sessions, creds: creds}
}

func listAll() store.OrderFilter {
	return store.OrderFilter{Page: 1, Limit: 100}
}

func seedSubmittedOrder(t *testing.T, st store.Store, id, advisorID, exchangeNumber string, amount decimal.Decimal) *models.Order {
	t.Helper()
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
		ReferenceNumber: "REF-" + id,
	}
	if !amount.IsZero() {
		order.Amount = &amount
	}
	if exchangeNumber != "" {
		order.ExchangeOrderNumber = &exchangeNumber
	}
	require.NoError(t, st.CreateOrder(context.Background(), order))
	return order
}
