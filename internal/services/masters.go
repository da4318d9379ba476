package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/store"
)

// MasterService maintains the scheme and bank masters.
type MasterService struct {
	store    store.Store
	client   exchange.Client
	sessions *exchange.SessionManager
	creds    exchange.CredentialSource
	logger   zerolog.Logger
}

// NewMasterService creates a master-data service.
func NewMasterService(st store.Store, client exchange.Client, sessions *exchange.SessionManager,
	creds exchange.CredentialSource, logger zerolog.Logger) *MasterService {
	return &MasterService{
		store:    st,
		client:   client,
		sessions: sessions,
		creds:    creds,
		logger:   logger,
	}
}

// SearchSchemes returns schemes matching the query with a total count.
func (s *MasterService) SearchSchemes(ctx context.Context, query string, page, limit int) ([]models.SchemeMaster, int, error) {
	return s.store.SearchSchemes(ctx, query, page, limit)
}

// GetScheme returns one scheme by code.
func (s *MasterService) GetScheme(ctx context.Context, schemeCode string) (*models.SchemeMaster, error) {
	schemes, _, err := s.store.SearchSchemes(ctx, schemeCode, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(schemes) == 0 || schemes[0].SchemeCode != schemeCode {
		return nil, apperrors.ErrSchemeNotFound
	}
	return &schemes[0], nil
}

// ListBanks returns active banks for a payment mode.
func (s *MasterService) ListBanks(ctx context.Context, mode models.PaymentMode) ([]models.BankMaster, error) {
	return s.store.ListBanks(ctx, mode)
}

// SyncSchemeMaster downloads the exchange's scheme master and upserts it
// into the local catalog. Returns the number of schemes applied. Rows that
// fail to parse are skipped and counted, never fatal: one bad row must not
// abort a multi-thousand-row master refresh.
func (s *MasterService) SyncSchemeMaster(ctx context.Context, advisorID string) (int, error) {
	token, err := s.sessions.Token(ctx, advisorID, models.PurposeFileUpload)
	if err != nil {
		return 0, err
	}
	creds, err := s.creds.Resolve(ctx, advisorID)
	if err != nil {
		return 0, err
	}

	env, err := s.client.Execute(ctx, exchange.Request{
		Endpoint:    exchange.EndpointSchemeMaster,
		APIName:     "SchemeMasterDownload",
		AdvisorID:   advisorID,
		Body:        []byte(exchange.JoinPipe(creds.MemberCode, token)),
		ContentType: "text/plain",
	})
	if err != nil {
		return 0, err
	}

	schemes, err := parseSchemeMaster(env.Body)
	if err != nil {
		return 0, err
	}

	now := timeNow()
	applied := 0
	skipped := 0
	for i := range schemes {
		scheme := &schemes[i]
		if scheme.SchemeCode == "" {
			skipped++
			continue
		}
		scheme.Normalize()
		scheme.LastSyncedAt = now
		if err := s.store.UpsertScheme(ctx, scheme); err != nil {
			skipped++
			s.logger.Warn().Err(err).
				Str("scheme_code", scheme.SchemeCode).
				Msg("Failed to upsert scheme")
			continue
		}
		applied++
	}

	s.logger.Info().
		Int("applied", applied).
		Int("skipped", skipped).
		Msg("Scheme master synced")
	return applied, nil
}

// The exchange distributes its masters pipe-delimited. gocsv's reader is
// package-global state, so it is configured exactly once; concurrent parses
// must not reconfigure it mid-flight.
func init() {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = '|'
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		return r
	})
}

// parseSchemeMaster decodes the pipe-delimited scheme master download.
func parseSchemeMaster(data []byte) ([]models.SchemeMaster, error) {
	var schemes []models.SchemeMaster
	if err := gocsv.UnmarshalBytes(bytes.TrimSpace(data), &schemes); err != nil {
		return nil, apperrors.Wrap(err, "parsing scheme master")
	}
	return schemes, nil
}
