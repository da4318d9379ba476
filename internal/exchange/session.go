package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// Credentials is a decrypted credential set, held in memory only for the
// duration of a call.
type Credentials struct {
	MemberCode string
	LoginID    string
	Password   string
	PassKey    string
	ARN        string
	EUIN       string
}

// CredentialSource resolves an advisor's decrypted credentials.
type CredentialSource interface {
	Resolve(ctx context.Context, advisorID string) (*Credentials, error)
}

// sessionTTL is how long a purpose's token stays cached. The exchange grants
// roughly an hour; the margin absorbs clock skew and in-flight latency.
// Zero means login per request: those purposes issue single-use tokens.
var sessionTTL = map[models.SessionPurpose]time.Duration{
	models.PurposeOrderEntry:    55 * time.Minute,
	models.PurposeAdditional:    55 * time.Minute,
	models.PurposeFileUpload:    0,
	models.PurposeMandateStatus: 0,
	models.PurposeChildOrder:    0,
}

// SessionManager caches exchange session tokens per (advisor, purpose) and
// de-duplicates concurrent logins: N goroutines needing the same expired
// token produce exactly one login call.
type SessionManager struct {
	client Client
	creds  CredentialSource
	store  store.SessionRepo
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[sessionKey]*loginCall
}

type sessionKey struct {
	userID  string
	purpose models.SessionPurpose
}

type loginCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewSessionManager creates a session manager backed by the given store.
func NewSessionManager(client Client, creds CredentialSource, st store.SessionRepo, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		client:   client,
		creds:    creds,
		store:    st,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[sessionKey]*loginCall),
	}
}

// Token returns a valid session token for (advisorID, purpose), logging in
// when the cache misses or the cached token has expired.
func (m *SessionManager) Token(ctx context.Context, advisorID string, purpose models.SessionPurpose) (string, error) {
	ttl := sessionTTL[purpose]

	if ttl > 0 {
		cached, err := m.store.GetSessionToken(ctx, advisorID, purpose)
		if err != nil {
			return "", err
		}
		if cached.Valid(m.now()) {
			return cached.Token, nil
		}
	}

	key := sessionKey{userID: advisorID, purpose: purpose}

	m.mu.Lock()
	if call, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &loginCall{done: make(chan struct{})}
	m.inflight[key] = call
	m.mu.Unlock()

	call.token, call.err = m.login(ctx, advisorID, purpose, ttl)
	close(call.done)

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()

	return call.token, call.err
}

// Refresh forces a new login for (advisorID, purpose) regardless of cache
// state. Used by the session-refresh job to keep tokens warm.
func (m *SessionManager) Refresh(ctx context.Context, advisorID string, purpose models.SessionPurpose) error {
	_, err := m.login(ctx, advisorID, purpose, sessionTTL[purpose])
	return err
}

// InvalidateAll drops every cached token for an advisor. Called when
// credentials change: old tokens were minted under the old secret.
func (m *SessionManager) InvalidateAll(ctx context.Context, advisorID string) error {
	return m.store.DeleteSessionTokens(ctx, advisorID)
}

func (m *SessionManager) login(ctx context.Context, advisorID string, purpose models.SessionPurpose, ttl time.Duration) (string, error) {
	creds, err := m.creds.Resolve(ctx, advisorID)
	if err != nil {
		return "", err
	}

	endpoint := LoginEndpoint(purpose)

	var body []byte
	var contentType string
	if endpoint.Encoding == EncodingPipe {
		body = []byte(JoinPipe(creds.LoginID, creds.Password, creds.PassKey))
		contentType = "text/plain"
	} else {
		body, err = json.Marshal(map[string]string{
			"MemberId": creds.MemberCode,
			"UserId":   creds.LoginID,
			"Password": creds.Password,
			"PassKey":  creds.PassKey,
		})
		if err != nil {
			return "", apperrors.Wrap(err, "encoding login request")
		}
		contentType = "application/json"
	}

	env, err := m.client.Execute(ctx, Request{
		Endpoint:    endpoint,
		APIName:     fmt.Sprintf("login/%s", purpose),
		AdvisorID:   advisorID,
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		return "", apperrors.Wrap(err, "exchange login")
	}

	token, err := parseLoginResponse(endpoint, env.Body)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", apperrors.ErrSessionUnavailable
	}

	if ttl > 0 {
		now := m.now()
		if err := m.store.PutSessionToken(ctx, &models.SessionToken{
			UserID:    advisorID,
			Purpose:   purpose,
			Token:     token,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		}); err != nil {
			// Caching is best-effort; the token itself is good.
			m.logger.Warn().Err(err).
				Str("advisor_id", advisorID).
				Str("purpose", string(purpose)).
				Msg("Failed to cache session token")
		}
	}

	return token, nil
}

func parseLoginResponse(endpoint Endpoint, body []byte) (string, error) {
	if endpoint.Encoding == EncodingPipe {
		result := ParsePipe(string(body))
		if err := result.Err(); err != nil {
			return "", apperrors.Wrap(apperrors.ErrSessionUnavailable, err.Error())
		}
		return result.Field(0), nil
	}

	var resp struct {
		Status       string `json:"Status"`
		ResponseCode string `json:"ResponseCode"`
		Token        string `json:"Token"`
		Password     string `json:"ResponseString"`
		Remarks      string `json:"Remarks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.Wrap(err, "decoding login response")
	}

	code := resp.Status
	if code == "" {
		code = resp.ResponseCode
	}
	if code != CodeSuccess {
		return "", apperrors.Wrapf(apperrors.ErrSessionUnavailable, "code %s: %s", code, resp.Remarks)
	}
	if resp.Token != "" {
		return resp.Token, nil
	}
	return resp.Password, nil
}
