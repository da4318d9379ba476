package models

import "time"

// Credential is one advisor's exchange-member credential set. Password and
// passkey are stored AES-GCM encrypted with per-field nonces; the member code
// stays plain for lookups.
type Credential struct {
	AdvisorID    string
	MemberCode   string
	LoginID      string
	ARN          string
	EUIN         *string
	PasswordEnc  string // base64(nonce|ciphertext)
	PassKeyEnc   string
	Active       bool
	LastTestedAt *time.Time
	TestStatus   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionPurpose distinguishes the exchange's per-API session tokens.
type SessionPurpose string

const (
	PurposeOrderEntry    SessionPurpose = "ORDER_ENTRY"
	PurposeAdditional    SessionPurpose = "ADDITIONAL_SERVICES"
	PurposeFileUpload    SessionPurpose = "FILE_UPLOAD"
	PurposeMandateStatus SessionPurpose = "MANDATE_STATUS"
	PurposeChildOrder    SessionPurpose = "CHILD_ORDER"
)

// SessionToken caches one exchange session token per (user, purpose).
// Tokens are replaced on refresh, never mutated in place.
type SessionToken struct {
	UserID    string
	Purpose   SessionPurpose
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the token is still usable at the given instant.
func (t *SessionToken) Valid(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt)
}
