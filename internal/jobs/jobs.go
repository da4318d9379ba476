package jobs

import (
	"context"

	"github.com/rs/zerolog"

	"starmf-gateway/internal/config"
	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/models"
	"starmf-gateway/internal/services"
	"starmf-gateway/internal/store"
)

// Job names as registered with the scheduler.
const (
	JobSessionRefresh = "session-refresh"
	JobOrderPoll      = "order-status-poll"
	JobMandatePoll    = "mandate-status-poll"
	JobAllotmentSync  = "allotment-sync"
	JobSchemeSync     = "scheme-sync"
)

// Runner holds the dependencies of the reconciliation jobs and registers
// them with a scheduler.
type Runner struct {
	store    store.Store
	sessions *exchange.SessionManager
	reports  *services.ReportService
	mandates *services.MandateService
	masters  *services.MasterService
	cfg      config.JobsConfig
	mock     bool
	logger   zerolog.Logger
}

// NewRunner creates a job runner. In mock mode every job short-circuits to a
// no-op: there is no real exchange state to reconcile against.
func NewRunner(st store.Store, sessions *exchange.SessionManager, reports *services.ReportService,
	mandates *services.MandateService, masters *services.MasterService,
	cfg config.JobsConfig, mock bool, logger zerolog.Logger) *Runner {
	return &Runner{
		store:    st,
		sessions: sessions,
		reports:  reports,
		mandates: mandates,
		masters:  masters,
		cfg:      cfg,
		mock:     mock,
		logger:   logger,
	}
}

// Register wires every job into the scheduler with its configured interval.
func (r *Runner) Register(s *Scheduler) {
	s.Every(r.cfg.SessionRefreshInterval, JobSessionRefresh, r.RefreshSessions)
	s.Every(r.cfg.OrderPollInterval, JobOrderPoll, r.PollOrderStatus)
	s.Every(r.cfg.MandatePollInterval, JobMandatePoll, r.PollMandateStatus)
	s.Every(r.cfg.AllotmentSyncInterval, JobAllotmentSync, r.SyncAllotments)
	s.Every(r.cfg.SchemeSyncInterval, JobSchemeSync, r.SyncSchemeMaster)
}

// RefreshSessions keeps the long-lived session tokens warm for every advisor
// with active credentials. One advisor's credential failure never blocks the
// rest.
func (r *Runner) RefreshSessions(ctx context.Context) error {
	if r.mock {
		return nil
	}

	advisors, err := r.store.ListActiveAdvisors(ctx)
	if err != nil {
		return err
	}

	logger := logging.WithJob(r.logger, JobSessionRefresh)
	var failed int
	for _, advisorID := range advisors {
		for _, purpose := range []models.SessionPurpose{models.PurposeOrderEntry, models.PurposeAdditional} {
			if err := r.sessions.Refresh(ctx, advisorID, purpose); err != nil {
				failed++
				logger.Warn().Err(err).
					Str("advisor_id", advisorID).
					Str("purpose", string(purpose)).
					Msg("Session refresh failed")
				break // this advisor's credentials are bad; skip their other purpose
			}
		}
	}

	logger.Info().Int("advisors", len(advisors)).Int("failed", failed).Msg("Sessions refreshed")
	return nil
}

// PollOrderStatus reconciles a bounded batch of non-terminal orders against
// the exchange. Orders are grouped by advisor so one advisor's credential
// failure skips only that advisor's orders.
func (r *Runner) PollOrderStatus(ctx context.Context) error {
	if r.mock {
		return nil
	}

	orders, err := r.store.ListOrdersForPoll(ctx, r.cfg.OrderPollBatch)
	if err != nil {
		return err
	}

	logger := logging.WithJob(r.logger, JobOrderPoll)
	r.perAdvisorOrders(ctx, logger, orders, r.reports.SyncOrderStatus)
	return nil
}

// PollMandateStatus reconciles a bounded batch of pollable mandates.
func (r *Runner) PollMandateStatus(ctx context.Context) error {
	if r.mock {
		return nil
	}

	mandates, err := r.store.ListMandatesForPoll(ctx, r.cfg.MandatePollBatch)
	if err != nil {
		return err
	}

	logger := logging.WithJob(r.logger, JobMandatePoll)
	skip := make(map[string]bool)
	for _, mandate := range mandates {
		if skip[mandate.AdvisorID] {
			continue
		}
		if _, err := r.mandates.RefreshStatus(ctx, mandate.ID); err != nil {
			logger.Warn().Err(err).
				Str("advisor_id", mandate.AdvisorID).
				Str("mandate_id", mandate.ID).
				Msg("Mandate poll failed")
			if isCredentialFailure(err) {
				skip[mandate.AdvisorID] = true
			}
		}
	}
	return nil
}

// SyncAllotments pulls allotment statements for non-terminal orders and
// refreshes the realized installments of systematic plans.
func (r *Runner) SyncAllotments(ctx context.Context) error {
	if r.mock {
		return nil
	}

	logger := logging.WithJob(r.logger, JobAllotmentSync)

	orders, err := r.store.ListOrdersForPoll(ctx, r.cfg.OrderPollBatch)
	if err != nil {
		return err
	}
	r.perAdvisorOrders(ctx, logger, orders, r.reports.SyncAllotment)

	plans, err := r.store.ListPlansForSync(ctx, r.cfg.OrderPollBatch)
	if err != nil {
		return err
	}
	r.perAdvisorOrders(ctx, logger, plans, func(ctx context.Context, plan *models.Order) error {
		_, err := r.reports.SyncChildOrders(ctx, plan)
		return err
	})
	return nil
}

// SyncSchemeMaster refreshes the scheme catalog using the first advisor with
// working credentials; the master is member-independent.
func (r *Runner) SyncSchemeMaster(ctx context.Context) error {
	if r.mock {
		return nil
	}

	advisors, err := r.store.ListActiveAdvisors(ctx)
	if err != nil {
		return err
	}
	if len(advisors) == 0 {
		return nil
	}

	logger := logging.WithJob(r.logger, JobSchemeSync)
	var lastErr error
	for _, advisorID := range advisors {
		n, err := r.masters.SyncSchemeMaster(ctx, advisorID)
		if err == nil {
			logger.Info().Int("schemes", n).Msg("Scheme master sync completed")
			return nil
		}
		lastErr = err
		logger.Warn().Err(err).Str("advisor_id", advisorID).Msg("Scheme sync attempt failed")
	}
	return lastErr
}

// perAdvisorOrders applies fn to each order sequentially, skipping the
// remaining orders of an advisor whose credentials have failed.
func (r *Runner) perAdvisorOrders(ctx context.Context, logger zerolog.Logger,
	orders []models.Order, fn func(context.Context, *models.Order) error) {
	skip := make(map[string]bool)
	for i := range orders {
		order := &orders[i]
		if skip[order.AdvisorID] {
			continue
		}
		if err := fn(ctx, order); err != nil {
			logger.Warn().Err(err).
				Str("advisor_id", order.AdvisorID).
				Str("order_id", order.ID).
				Msg("Order reconciliation failed")
			if isCredentialFailure(err) {
				skip[order.AdvisorID] = true
			}
		}
	}
}

func isCredentialFailure(err error) bool {
	var credErr *apperrors.CredentialError
	return apperrors.As(err, &credErr) ||
		apperrors.Is(err, apperrors.ErrCredentialsNotConfigured) ||
		apperrors.Is(err, apperrors.ErrCredentialsInactive) ||
		apperrors.Is(err, apperrors.ErrSessionUnavailable)
}
