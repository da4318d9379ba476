package exchange

import (
	"encoding/json"
	"strings"

	apperrors "starmf-gateway/internal/errors"
)

// CodeSuccess is the exchange's success response code, shared by both the
// pipe and JSON encodings.
const CodeSuccess = "100"

// Result is the normalized outcome of one exchange call, whichever encoding
// the endpoint spoke on the wire.
type Result struct {
	Success bool
	Code    string
	Message string
	// Fields holds the positional payload of a pipe response or selected
	// values lifted from a JSON body, in endpoint-defined order.
	Fields []string
}

// Err converts a non-success result into an ExchangeError; nil on success.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return apperrors.NewExchangeError(r.Code, r.Message, nil)
}

// Field returns the i-th payload field, or "" when absent.
func (r *Result) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// ParsePipe parses a pipe-delimited response body. The first segment is the
// response code; the rest is positional payload. "100|token" yields a
// success with Fields = ["token"].
func ParsePipe(body string) *Result {
	parts := strings.Split(strings.TrimSpace(body), "|")
	code := strings.TrimSpace(parts[0])

	r := &Result{
		Code:    code,
		Success: code == CodeSuccess,
	}
	if len(parts) > 1 {
		r.Fields = make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			r.Fields = append(r.Fields, strings.TrimSpace(p))
		}
	}
	if !r.Success {
		// Failure bodies carry the human-readable reason after the code.
		r.Message = strings.Join(r.Fields, "|")
	}
	return r
}

// JoinPipe builds a pipe-delimited request body from positional fields.
func JoinPipe(fields ...string) string {
	return strings.Join(fields, "|")
}

// jsonEnvelope is the common JSON response shape. The exchange is not
// consistent about field casing across services, so alternates are checked.
type jsonEnvelope struct {
	Status       string `json:"Status"`
	StatusCode   string `json:"StatusCode"`
	ResponseCode string `json:"ResponseCode"`
	Remarks      string `json:"Remarks"`
	ResponseStr  string `json:"ResponseString"`
	Message      string `json:"Message"`
}

// ParseJSON parses a JSON response body into a Result. Extra is populated
// with the raw body so callers can decode endpoint-specific payloads.
func ParseJSON(body []byte) (*Result, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Wrap(err, "decoding exchange response")
	}

	code := env.Status
	if code == "" {
		code = env.StatusCode
	}
	if code == "" {
		code = env.ResponseCode
	}

	msg := env.Remarks
	if msg == "" {
		msg = env.ResponseStr
	}
	if msg == "" {
		msg = env.Message
	}

	return &Result{
		Success: code == CodeSuccess,
		Code:    code,
		Message: msg,
	}, nil
}
