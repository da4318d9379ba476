// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"starmf-gateway/internal/models"
)

// OrderRepo persists exchange orders.
type OrderRepo interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByExchangeNumber(ctx context.Context, exchangeOrderNumber string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	// UpdateOrderIfStatus applies the update only when the stored status still
	// equals expect; reports whether a row changed. Used to mark a crash-
	// interrupted submission FAILED without clobbering a later update.
	UpdateOrderIfStatus(ctx context.Context, order *models.Order, expect models.OrderStatus) (bool, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error)
	// ListOrdersForPoll returns non-terminal orders that carry an exchange
	// order number, oldest-updated first, bounded by limit.
	ListOrdersForPoll(ctx context.Context, limit int) ([]models.Order, error)
	// ListPlansForSync returns non-terminal systematic registrations that
	// carry a registration number, oldest-updated first.
	ListPlansForSync(ctx context.Context, limit int) ([]models.Order, error)
}

// PaymentRepo persists the 1:1 payment attached to an order.
type PaymentRepo interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	// UpdatePaymentIfStatus mirrors UpdateOrderIfStatus for payments.
	UpdatePaymentIfStatus(ctx context.Context, payment *models.Payment, expect models.PaymentStatus) (bool, error)
}

// MandateRepo persists debit mandates.
type MandateRepo interface {
	CreateMandate(ctx context.Context, mandate *models.Mandate) error
	GetMandate(ctx context.Context, id string) (*models.Mandate, error)
	GetMandateByExchangeID(ctx context.Context, exchangeMandateID string) (*models.Mandate, error)
	UpdateMandate(ctx context.Context, mandate *models.Mandate) error
	ListMandates(ctx context.Context, filter MandateFilter) ([]models.Mandate, error)
	// ListMandatesForPoll returns CREATED/SUBMITTED mandates with an exchange
	// mandate id, oldest-updated first, bounded by limit.
	ListMandatesForPoll(ctx context.Context, limit int) ([]models.Mandate, error)
}

// ChildOrderRepo persists systematic-plan installments.
type ChildOrderRepo interface {
	// UpsertChildOrder inserts or updates by (orderID, installmentNo);
	// re-running a report sync never duplicates rows.
	UpsertChildOrder(ctx context.Context, child *models.ChildOrder) error
	ListChildOrders(ctx context.Context, orderID string) ([]models.ChildOrder, error)
}

// SchemeRepo persists the scheme and bank masters.
type SchemeRepo interface {
	UpsertScheme(ctx context.Context, scheme *models.SchemeMaster) error
	SearchSchemes(ctx context.Context, query string, page, limit int) ([]models.SchemeMaster, int, error)
	ListBanks(ctx context.Context, mode models.PaymentMode) ([]models.BankMaster, error)
}

// RegistrationRepo persists client UCC registrations. At most one
// registration exists per client; re-submission replaces it.
type RegistrationRepo interface {
	UpsertRegistration(ctx context.Context, reg *models.ClientRegistration) error
	GetRegistration(ctx context.Context, clientID string) (*models.ClientRegistration, error)
	UpdateFATCAStatus(ctx context.Context, clientID string, status models.FATCAStatus) error
}

// CredentialRepo persists per-advisor exchange credentials.
type CredentialRepo interface {
	UpsertCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, advisorID string) (*models.Credential, error)
	UpdateCredentialTest(ctx context.Context, advisorID, status string) error
	ListActiveAdvisors(ctx context.Context) ([]string, error)
}

// SessionRepo persists cached session tokens. At most one valid token exists
// per (userID, purpose); refresh replaces the row.
type SessionRepo interface {
	GetSessionToken(ctx context.Context, userID string, purpose models.SessionPurpose) (*models.SessionToken, error)
	PutSessionToken(ctx context.Context, token *models.SessionToken) error
	DeleteSessionTokens(ctx context.Context, userID string) error
}

// Store is the composite persistence surface.
type Store interface {
	OrderRepo
	PaymentRepo
	MandateRepo
	ChildOrderRepo
	SchemeRepo
	RegistrationRepo
	CredentialRepo
	SessionRepo

	// ApplyPaymentCallback updates a payment and its order in one
	// transaction; both succeed or neither does.
	ApplyPaymentCallback(ctx context.Context, payment *models.Payment, order *models.Order) error

	Close() error
}

// OrderFilter represents filters for querying orders.
type OrderFilter struct {
	AdvisorID string
	ClientID  string
	Status    models.OrderStatus
	Type      models.OrderType
	Page      int
	Limit     int
}

// MandateFilter represents filters for querying mandates.
type MandateFilter struct {
	AdvisorID string
	ClientID  string
	Status    models.MandateStatus
}
