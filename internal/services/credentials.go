// Package services implements the gateway's business operations on top of
// the store and the exchange client.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/security"
	"starmf-gateway/internal/store"
)

// CredentialService manages per-advisor exchange credentials. It implements
// exchange.CredentialSource for the session manager.
type CredentialService struct {
	store    store.Store
	cipher   *security.FieldCipher
	sessions *exchange.SessionManager
	logger   zerolog.Logger
}

// NewCredentialService creates a credential service. AttachSessions must be
// called before Test is used.
func NewCredentialService(st store.Store, cipher *security.FieldCipher, logger zerolog.Logger) *CredentialService {
	return &CredentialService{store: st, cipher: cipher, logger: logger}
}

// AttachSessions wires the session manager in after construction; the
// manager itself depends on this service for credential resolution.
func (s *CredentialService) AttachSessions(sessions *exchange.SessionManager) {
	s.sessions = sessions
}

// SetCredentialInput carries one advisor's credential set.
type SetCredentialInput struct {
	AdvisorID  string
	MemberCode string
	LoginID    string
	Password   string
	PassKey    string
	ARN        string
	EUIN       string
}

// Set encrypts and stores an advisor's credentials, then invalidates every
// cached session token: tokens minted under the old secret are useless.
func (s *CredentialService) Set(ctx context.Context, input SetCredentialInput) error {
	if input.AdvisorID == "" {
		return apperrors.NewValidationError("advisorId", input.AdvisorID, "must not be empty")
	}
	if input.MemberCode == "" || input.LoginID == "" {
		return apperrors.NewValidationError("memberCode", input.MemberCode, "member code and login id are required")
	}
	if input.Password == "" || input.PassKey == "" {
		return apperrors.NewValidationError("password", "", "password and passkey are required")
	}

	passwordEnc, err := s.cipher.EncryptField(input.Password)
	if err != nil {
		return apperrors.Wrap(err, "encrypting password")
	}
	passKeyEnc, err := s.cipher.EncryptField(input.PassKey)
	if err != nil {
		return apperrors.Wrap(err, "encrypting passkey")
	}

	cred := &models.Credential{
		AdvisorID:   input.AdvisorID,
		MemberCode:  input.MemberCode,
		LoginID:     input.LoginID,
		ARN:         input.ARN,
		PasswordEnc: passwordEnc,
		PassKeyEnc:  passKeyEnc,
		Active:      true,
	}
	if input.EUIN != "" {
		cred.EUIN = &input.EUIN
	}

	if err := s.store.UpsertCredential(ctx, cred); err != nil {
		return err
	}

	if err := s.store.DeleteSessionTokens(ctx, input.AdvisorID); err != nil {
		s.logger.Warn().Err(err).
			Str("advisor_id", input.AdvisorID).
			Msg("Failed to invalidate session tokens after credential change")
	}

	s.logger.Info().Str("advisor_id", input.AdvisorID).Msg("Exchange credentials updated")
	return nil
}

// CredentialStatus is the externally visible credential state; secrets are
// never included.
type CredentialStatus struct {
	AdvisorID    string
	MemberCode   string
	LoginID      string
	ARN          string
	Active       bool
	LastTestedAt *time.Time
	TestStatus   string
}

// Status returns an advisor's credential state with secrets masked out.
func (s *CredentialService) Status(ctx context.Context, advisorID string) (*CredentialStatus, error) {
	cred, err := s.store.GetCredential(ctx, advisorID)
	if err != nil {
		return nil, err
	}

	status := &CredentialStatus{
		AdvisorID:    cred.AdvisorID,
		MemberCode:   cred.MemberCode,
		LoginID:      maskLogin(cred.LoginID),
		ARN:          cred.ARN,
		Active:       cred.Active,
		LastTestedAt: cred.LastTestedAt,
	}
	if cred.TestStatus != nil {
		status.TestStatus = *cred.TestStatus
	}
	return status, nil
}

func maskLogin(login string) string {
	if len(login) <= 2 {
		return strings.Repeat("*", len(login))
	}
	return login[:2] + strings.Repeat("*", len(login)-2)
}

// Test verifies the stored credentials by performing a real order-entry
// login and records the outcome.
func (s *CredentialService) Test(ctx context.Context, advisorID string) error {
	err := s.sessions.Refresh(ctx, advisorID, models.PurposeOrderEntry)

	result := "OK"
	if err != nil {
		result = "FAILED: " + err.Error()
	}
	if uerr := s.store.UpdateCredentialTest(ctx, advisorID, result); uerr != nil {
		s.logger.Warn().Err(uerr).
			Str("advisor_id", advisorID).
			Msg("Failed to record credential test result")
	}

	return err
}

// Resolve implements exchange.CredentialSource: it loads and decrypts one
// advisor's credential set for a single call.
func (s *CredentialService) Resolve(ctx context.Context, advisorID string) (*exchange.Credentials, error) {
	cred, err := s.store.GetCredential(ctx, advisorID)
	if err != nil {
		return nil, apperrors.NewCredentialError(advisorID, "not configured", err)
	}
	if !cred.Active {
		return nil, apperrors.NewCredentialError(advisorID, "inactive", apperrors.ErrCredentialsInactive)
	}

	password, err := s.cipher.DecryptField(cred.PasswordEnc)
	if err != nil {
		return nil, apperrors.NewCredentialError(advisorID, "password undecryptable", err)
	}
	passKey, err := s.cipher.DecryptField(cred.PassKeyEnc)
	if err != nil {
		return nil, apperrors.NewCredentialError(advisorID, "passkey undecryptable", err)
	}

	creds := &exchange.Credentials{
		MemberCode: cred.MemberCode,
		LoginID:    cred.LoginID,
		Password:   password,
		PassKey:    passKey,
		ARN:        cred.ARN,
	}
	if cred.EUIN != nil {
		creds.EUIN = *cred.EUIN
	}
	return creds, nil
}
