package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"starmf-gateway/internal/config"
	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/logging"
)

// Request is one call to the exchange.
type Request struct {
	Endpoint    Endpoint
	APIName     string // sub-operation within the endpoint, logged for audit
	AdvisorID   string
	Body        []byte
	ContentType string
}

// Envelope is the raw response before encoding-specific parsing.
type Envelope struct {
	StatusCode int
	Body       []byte
}

// Client executes exchange requests. Implementations: the live HTTP client
// and the mock used in development.
type Client interface {
	Execute(ctx context.Context, req Request) (*Envelope, error)
}

// liveClient talks HTTP to the real exchange. One request, one response;
// no retries here. Failed submissions are reconciled by the status polls,
// so a transport-level retry could double-submit.
type liveClient struct {
	baseURL  string
	http     *http.Client
	timeouts map[OpClass]time.Duration
	logger   zerolog.Logger
}

// NewClient creates the live exchange client.
func NewClient(cfg config.ExchangeConfig, logger zerolog.Logger) Client {
	return &liveClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{},
		timeouts: map[OpClass]time.Duration{
			OpStatus:  cfg.StatusTimeout,
			OpOrder:   cfg.OrderTimeout,
			OpPayment: cfg.PaymentTimeout,
			OpUpload:  cfg.UploadTimeout,
		},
		logger: logger,
	}
}

// Execute sends the request with the timeout of its operation class. The
// call is detached from the caller's cancellation: once a submission is on
// the wire, abandoning it locally would leave the exchange-side outcome
// unknown.
func (c *liveClient) Execute(ctx context.Context, req Request) (*Envelope, error) {
	timeout, ok := c.timeouts[req.Endpoint.Class]
	if !ok {
		timeout = c.timeouts[OpStatus]
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+req.Endpoint.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, apperrors.NewTransportError(req.Endpoint.Name, req.Endpoint.Path, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", contentType)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		logging.LogAPICall(c.logger, req.APIName, req.Endpoint.Name, 0, duration, err)
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTransportError(req.Endpoint.Name, req.Endpoint.Path,
				apperrors.Wrapf(apperrors.ErrTimeout, "%s after %s", req.Endpoint.Class, timeout))
		}
		return nil, apperrors.NewTransportError(req.Endpoint.Name, req.Endpoint.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.LogAPICall(c.logger, req.APIName, req.Endpoint.Name, resp.StatusCode, duration, err)
		return nil, apperrors.NewTransportError(req.Endpoint.Name, req.Endpoint.Path, err)
	}

	// Request and response bodies are never logged; they carry credentials
	// and client PII. Only call metadata goes to the audit trail.
	logging.LogAPICall(c.logger, req.APIName, req.Endpoint.Name, resp.StatusCode, duration, nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewTransportError(req.Endpoint.Name, req.Endpoint.Path,
			apperrors.Wrapf(apperrors.ErrDataNotFound, "http status %d", resp.StatusCode))
	}

	return &Envelope{StatusCode: resp.StatusCode, Body: body}, nil
}
