package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmf-gateway/internal/models"
)

// memSessionRepo is an in-memory store.SessionRepo for session tests.
type memSessionRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.SessionToken
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{tokens: make(map[string]*models.SessionToken)}
}

func (r *memSessionRepo) key(userID string, purpose models.SessionPurpose) string {
	return userID + "/" + string(purpose)
}

func (r *memSessionRepo) GetSessionToken(_ context.Context, userID string, purpose models.SessionPurpose) (*models.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[r.key(userID, purpose)], nil
}

func (r *memSessionRepo) PutSessionToken(_ context.Context, token *models.SessionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[r.key(token.UserID, token.Purpose)] = token
	return nil
}

func (r *memSessionRepo) DeleteSessionTokens(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.tokens {
		if len(k) > len(userID) && k[:len(userID)] == userID && k[len(userID)] == '/' {
			delete(r.tokens, k)
		}
	}
	return nil
}

// countingClient counts login calls and hands out unique tokens.
type countingClient struct {
	logins atomic.Int64
	delay  time.Duration
}

func (c *countingClient) Execute(ctx context.Context, req Request) (*Envelope, error) {
	n := c.logins.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return &Envelope{
		StatusCode: 200,
		Body:       []byte(fmt.Sprintf("100|TOKEN-%d", n)),
	}, nil
}

type staticCreds struct{}

func (staticCreds) Resolve(context.Context, string) (*Credentials, error) {
	return &Credentials{MemberCode: "10001", LoginID: "user", Password: "pw", PassKey: "pk"}, nil
}

// Property: N concurrent Token calls for the same (advisor, purpose) issue
// exactly one login and every caller gets the identical token.
func TestProperty_ConcurrentTokenSingleLogin(t *testing.T) {
	client := &countingClient{delay: 20 * time.Millisecond}
	mgr := NewSessionManager(client, staticCreds{}, newMemSessionRepo(), zerolog.Nop())

	const callers = 32
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i], "caller %d got a different token", i)
	}
	assert.EqualValues(t, 1, client.logins.Load(), "exactly one login for the burst")
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	client := &countingClient{}
	mgr := NewSessionManager(client, staticCreds{}, newMemSessionRepo(), zerolog.Nop())

	first, err := mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)

	second, err := mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, client.logins.Load(), "second call served from cache")
}

func TestTokenExpiryForcesRelogin(t *testing.T) {
	client := &countingClient{}
	mgr := NewSessionManager(client, staticCreds{}, newMemSessionRepo(), zerolog.Nop())

	_, err := mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)

	// Move the clock past the TTL.
	mgr.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	assert.EqualValues(t, 2, client.logins.Load())
}

func TestSingleUsePurposeAlwaysLogsIn(t *testing.T) {
	client := &countingClient{}
	mgr := NewSessionManager(client, staticCreds{}, newMemSessionRepo(), zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := mgr.Token(context.Background(), "ADV1", models.PurposeFileUpload)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, client.logins.Load(), "upload tokens are single-use")
}

func TestInvalidateAllDropsTokens(t *testing.T) {
	client := &countingClient{}
	repo := newMemSessionRepo()
	mgr := NewSessionManager(client, staticCreds{}, repo, zerolog.Nop())

	_, err := mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	_, err = mgr.Token(context.Background(), "ADV1", models.PurposeAdditional)
	require.NoError(t, err)

	require.NoError(t, mgr.InvalidateAll(context.Background(), "ADV1"))

	_, err = mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	assert.EqualValues(t, 3, client.logins.Load(), "invalidate forces relogin")
}

func TestDifferentPurposesIndependentTokens(t *testing.T) {
	client := &countingClient{}
	mgr := NewSessionManager(client, staticCreds{}, newMemSessionRepo(), zerolog.Nop())

	a, err := mgr.Token(context.Background(), "ADV1", models.PurposeOrderEntry)
	require.NoError(t, err)
	b, err := mgr.Token(context.Background(), "ADV1", models.PurposeAdditional)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "purposes get independently scoped tokens")
}
