package services

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
)

// UploadFlag identifies the document kind for the exchange's file-upload
// service.
type UploadFlag string

const (
	// UploadAOF is the account-opening form image.
	UploadAOF UploadFlag = "06"
	// UploadFATCA is the FATCA declaration.
	UploadFATCA UploadFlag = "08"
	// UploadCheque is the cancelled-cheque image for mandate registration.
	UploadCheque UploadFlag = "10"
)

// Valid reports whether the flag is one the exchange accepts.
func (f UploadFlag) Valid() bool {
	switch f {
	case UploadAOF, UploadFATCA, UploadCheque:
		return true
	}
	return false
}

// UploadService sends client documents to the exchange.
type UploadService struct {
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	logger   zerolog.Logger
}

// NewUploadService creates an upload service.
func NewUploadService(client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, logger zerolog.Logger) *UploadService {
	return &UploadService{
		client:   client,
		sessions: sessions,
		creds:    creds,
		logger:   logger,
	}
}

// UploadInput describes one document upload.
type UploadInput struct {
	AdvisorID string
	ClientID  string
	Flag      UploadFlag
	FileName  string
	Content   []byte
}

// Upload sends a client document to the exchange. Upload tokens are
// single-use, so each call performs its own login.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) error {
	if !input.Flag.Valid() {
		return apperrors.NewValidationError("flag", string(input.Flag), "unknown document flag")
	}
	if input.ClientID == "" {
		return apperrors.NewValidationError("clientId", input.ClientID, "must not be empty")
	}
	if input.FileName == "" || len(input.Content) == 0 {
		return apperrors.NewValidationError("fileName", input.FileName, "file name and content are required")
	}

	creds, err := s.creds.Resolve(ctx, input.AdvisorID)
	if err != nil {
		return err
	}
	token, err := s.sessions.Token(ctx, input.AdvisorID, models.PurposeFileUpload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"MemberCode":  creds.MemberCode,
		"ClientCode":  input.ClientID,
		"Flag":        string(input.Flag),
		"DocumentNm":  input.FileName,
		"pFileBytess": base64.StdEncoding.EncodeToString(input.Content),
		"Token":       token,
	})
	if err != nil {
		return apperrors.Wrap(err, "encoding upload request")
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:  exchange.EndpointFileUpload,
		APIName:   "UploadFile/" + string(input.Flag),
		AdvisorID: input.AdvisorID,
		Body:      body,
	})
	if err != nil {
		return err
	}

	result, err := exchange.ParseJSON(env.Body)
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}

	s.logger.Info().
		Str("client_id", input.ClientID).
		Str("flag", string(input.Flag)).
		Str("file", input.FileName).
		Msg("Document uploaded")
	return nil
}
