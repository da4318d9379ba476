package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Serialize writes through one connection; sqlite locks the whole file.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		advisor_id     TEXT PRIMARY KEY,
		member_code    TEXT NOT NULL,
		login_id       TEXT NOT NULL,
		arn            TEXT NOT NULL,
		euin           TEXT,
		password_enc   TEXT NOT NULL,
		passkey_enc    TEXT NOT NULL,
		active         INTEGER NOT NULL DEFAULT 1,
		last_tested_at TIMESTAMP,
		test_status    TEXT,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_tokens (
		user_id    TEXT NOT NULL,
		purpose    TEXT NOT NULL,
		token      TEXT NOT NULL,
		issued_at  TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, purpose)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id                    TEXT PRIMARY KEY,
		advisor_id            TEXT NOT NULL,
		client_id             TEXT NOT NULL,
		type                  TEXT NOT NULL,
		status                TEXT NOT NULL,
		trans_code            TEXT NOT NULL,
		scheme_code           TEXT NOT NULL,
		target_scheme         TEXT,
		buy_sell              TEXT NOT NULL,
		buy_sell_type         TEXT,
		amount                TEXT,
		units                 TEXT,
		dp_txn_mode           TEXT NOT NULL,
		folio_number          TEXT,
		reference_number      TEXT NOT NULL UNIQUE,
		exchange_order_number TEXT,
		registration_number   TEXT,
		mandate_ref           TEXT,
		frequency             TEXT,
		start_date            TIMESTAMP,
		end_date              TIMESTAMP,
		installments          INTEGER,
		first_order_flag      TEXT,
		allotted_units        TEXT,
		allotted_nav          TEXT,
		allotted_amount       TEXT,
		allotted_at           TIMESTAMP,
		response_code         TEXT,
		response_message      TEXT,
		submitted_at          TIMESTAMP,
		created_at            TIMESTAMP NOT NULL,
		updated_at            TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_advisor ON orders(advisor_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_exchange_number ON orders(exchange_order_number);

	CREATE TABLE IF NOT EXISTS payments (
		id               TEXT PRIMARY KEY,
		order_id         TEXT NOT NULL UNIQUE REFERENCES orders(id),
		mode             TEXT NOT NULL,
		status           TEXT NOT NULL,
		amount           TEXT NOT NULL,
		bank_code        TEXT,
		redirect_url     TEXT,
		transaction_ref  TEXT,
		response_code    TEXT,
		response_message TEXT,
		paid_at          TIMESTAMP,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mandates (
		id                  TEXT PRIMARY KEY,
		advisor_id          TEXT NOT NULL,
		client_id           TEXT NOT NULL,
		exchange_mandate_id TEXT,
		umrn                TEXT,
		type                TEXT NOT NULL,
		status              TEXT NOT NULL,
		amount              TEXT NOT NULL,
		bank_account_id     TEXT,
		bank_code           TEXT,
		start_date          TIMESTAMP,
		end_date            TIMESTAMP,
		auth_url            TEXT,
		response_code       TEXT,
		response_message    TEXT,
		created_at          TIMESTAMP NOT NULL,
		updated_at          TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mandates_advisor ON mandates(advisor_id);
	CREATE INDEX IF NOT EXISTS idx_mandates_status ON mandates(status);

	CREATE TABLE IF NOT EXISTS child_orders (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id              TEXT NOT NULL REFERENCES orders(id),
		installment_no        INTEGER NOT NULL,
		exchange_order_number TEXT NOT NULL,
		amount                TEXT,
		units                 TEXT,
		nav                   TEXT,
		status                TEXT NOT NULL,
		created_at            TIMESTAMP NOT NULL,
		updated_at            TIMESTAMP NOT NULL,
		UNIQUE (order_id, installment_no)
	);

	CREATE TABLE IF NOT EXISTS scheme_master (
		scheme_code         TEXT PRIMARY KEY,
		scheme_name         TEXT NOT NULL,
		isin                TEXT,
		amc_code            TEXT,
		purchase_allowed    INTEGER NOT NULL DEFAULT 0,
		redemption_allowed  INTEGER NOT NULL DEFAULT 0,
		sip_allowed         INTEGER NOT NULL DEFAULT 0,
		min_purchase_amount TEXT,
		min_sip_amount      TEXT,
		last_synced_at      TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scheme_name ON scheme_master(scheme_name);

	CREATE TABLE IF NOT EXISTS client_registrations (
		client_id        TEXT PRIMARY KEY,
		advisor_id       TEXT NOT NULL,
		client_code      TEXT NOT NULL,
		status           TEXT NOT NULL,
		fatca_status     TEXT NOT NULL DEFAULT 'PENDING',
		tax_status       TEXT,
		holding_nature   TEXT,
		occupation_code  TEXT,
		response_code    TEXT,
		response_message TEXT,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_registrations_advisor ON client_registrations(advisor_id);

	CREATE TABLE IF NOT EXISTS bank_master (
		bank_code      TEXT PRIMARY KEY,
		bank_name      TEXT NOT NULL,
		direct_allowed INTEGER NOT NULL DEFAULT 0,
		nodal_allowed  INTEGER NOT NULL DEFAULT 0,
		neft_allowed   INTEGER NOT NULL DEFAULT 0,
		upi_allowed    INTEGER NOT NULL DEFAULT 0,
		active         INTEGER NOT NULL DEFAULT 1
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullable column helpers

func decVal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func strVal(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timeVal(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func intVal(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// ---- orders ----

const orderColumns = `id, advisor_id, client_id, type, status, trans_code, scheme_code,
	target_scheme, buy_sell, buy_sell_type, amount, units, dp_txn_mode, folio_number,
	reference_number, exchange_order_number, registration_number, mandate_ref, frequency,
	start_date, end_date, installments, first_order_flag, allotted_units, allotted_nav,
	allotted_amount, allotted_at, response_code, response_message, submitted_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var targetScheme, buySellType, amount, units, folio, exchNum, regNum sql.NullString
	var mandateRef, frequency, firstFlag, allotUnits, allotNAV, allotAmt sql.NullString
	var respCode, respMsg sql.NullString
	var startDate, endDate, allottedAt, submittedAt sql.NullTime
	var installments sql.NullInt64

	err := row.Scan(
		&o.ID, &o.AdvisorID, &o.ClientID, &o.Type, &o.Status, &o.TransCode, &o.SchemeCode,
		&targetScheme, &o.BuySell, &buySellType, &amount, &units, &o.DPTxnMode, &folio,
		&o.ReferenceNumber, &exchNum, &regNum, &mandateRef, &frequency,
		&startDate, &endDate, &installments, &firstFlag, &allotUnits, &allotNAV,
		&allotAmt, &allottedAt, &respCode, &respMsg, &submittedAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.TargetScheme = strPtr(targetScheme)
	o.BuySellType = strPtr(buySellType)
	o.Amount = decPtr(amount)
	o.Units = decPtr(units)
	o.FolioNumber = strPtr(folio)
	o.ExchangeOrderNumber = strPtr(exchNum)
	o.RegistrationNumber = strPtr(regNum)
	o.MandateRef = strPtr(mandateRef)
	o.Frequency = strPtr(frequency)
	o.StartDate = timePtr(startDate)
	o.EndDate = timePtr(endDate)
	o.Installments = intPtr(installments)
	o.FirstOrderFlag = strPtr(firstFlag)
	o.AllottedUnits = decPtr(allotUnits)
	o.AllottedNAV = decPtr(allotNAV)
	o.AllottedAmount = decPtr(allotAmt)
	o.AllottedAt = timePtr(allottedAt)
	o.ResponseCode = strPtr(respCode)
	o.ResponseMessage = strPtr(respMsg)
	o.SubmittedAt = timePtr(submittedAt)

	return &o, nil
}

func orderArgs(o *models.Order) []interface{} {
	return []interface{}{
		o.ID, o.AdvisorID, o.ClientID, o.Type, o.Status, o.TransCode, o.SchemeCode,
		strVal(o.TargetScheme), o.BuySell, strVal(o.BuySellType), decVal(o.Amount),
		decVal(o.Units), o.DPTxnMode, strVal(o.FolioNumber), o.ReferenceNumber,
		strVal(o.ExchangeOrderNumber), strVal(o.RegistrationNumber), strVal(o.MandateRef),
		strVal(o.Frequency), timeVal(o.StartDate), timeVal(o.EndDate),
		intVal(o.Installments), strVal(o.FirstOrderFlag), decVal(o.AllottedUnits),
		decVal(o.AllottedNAV), decVal(o.AllottedAmount), timeVal(o.AllottedAt),
		strVal(o.ResponseCode), strVal(o.ResponseMessage), timeVal(o.SubmittedAt),
		o.CreatedAt, o.UpdatedAt,
	}
}

// CreateOrder inserts a new order.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *models.Order) error {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	query := `INSERT INTO orders (` + orderColumns + `) VALUES (` +
		strings.TrimSuffix(strings.Repeat("?, ", 32), ", ") + `)`
	_, err := s.db.ExecContext(ctx, query, orderArgs(order)...)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return order, nil
}

// GetOrderByExchangeNumber retrieves an order by its exchange order number.
func (s *SQLiteStore) GetOrderByExchangeNumber(ctx context.Context, exchangeOrderNumber string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE exchange_order_number = ?`, exchangeOrderNumber)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return order, nil
}

const orderUpdateSet = `advisor_id = ?, client_id = ?, type = ?, status = ?, trans_code = ?,
	scheme_code = ?, target_scheme = ?, buy_sell = ?, buy_sell_type = ?, amount = ?,
	units = ?, dp_txn_mode = ?, folio_number = ?, reference_number = ?,
	exchange_order_number = ?, registration_number = ?, mandate_ref = ?, frequency = ?,
	start_date = ?, end_date = ?, installments = ?, first_order_flag = ?,
	allotted_units = ?, allotted_nav = ?, allotted_amount = ?, allotted_at = ?,
	response_code = ?, response_message = ?, submitted_at = ?, updated_at = ?`

func orderUpdateArgs(o *models.Order) []interface{} {
	return []interface{}{
		o.AdvisorID, o.ClientID, o.Type, o.Status, o.TransCode,
		o.SchemeCode, strVal(o.TargetScheme), o.BuySell, strVal(o.BuySellType), decVal(o.Amount),
		decVal(o.Units), o.DPTxnMode, strVal(o.FolioNumber), o.ReferenceNumber,
		strVal(o.ExchangeOrderNumber), strVal(o.RegistrationNumber), strVal(o.MandateRef), strVal(o.Frequency),
		timeVal(o.StartDate), timeVal(o.EndDate), intVal(o.Installments), strVal(o.FirstOrderFlag),
		decVal(o.AllottedUnits), decVal(o.AllottedNAV), decVal(o.AllottedAmount), timeVal(o.AllottedAt),
		strVal(o.ResponseCode), strVal(o.ResponseMessage), timeVal(o.SubmittedAt), o.UpdatedAt,
	}
}

// UpdateOrder updates all mutable fields of an order.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now()
	args := append(orderUpdateArgs(order), order.ID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET `+orderUpdateSet+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrOrderNotFound
	}
	return nil
}

// UpdateOrderIfStatus updates the order only when its stored status still
// matches expect.
func (s *SQLiteStore) UpdateOrderIfStatus(ctx context.Context, order *models.Order, expect models.OrderStatus) (bool, error) {
	order.UpdatedAt = time.Now()
	args := append(orderUpdateArgs(order), order.ID, expect)
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET `+orderUpdateSet+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("updating order: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListOrders returns orders matching the filter, newest first, with the
// total count before pagination.
func (s *SQLiteStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error) {
	var where []string
	var args []interface{}

	if filter.AdvisorID != "" {
		where = append(where, "advisor_id = ?")
		args = append(args, filter.AdvisorID)
	}
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + clause +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

// ListOrdersForPoll returns non-terminal orders with an exchange order number,
// oldest-updated first so stragglers are never starved.
func (s *SQLiteStore) ListOrdersForPoll(ctx context.Context, limit int) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE exchange_order_number IS NOT NULL
		   AND status NOT IN ('ALLOTTED', 'REJECTED', 'CANCELLED', 'FAILED')
		 ORDER BY updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pollable orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListPlansForSync returns non-terminal systematic registrations.
func (s *SQLiteStore) ListPlansForSync(ctx context.Context, limit int) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE registration_number IS NOT NULL
		   AND status NOT IN ('REJECTED', 'CANCELLED', 'FAILED')
		 ORDER BY updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ---- payments ----

const paymentColumns = `id, order_id, mode, status, amount, bank_code, redirect_url,
	transaction_ref, response_code, response_message, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var amount string
	var bankCode, redirectURL, txnRef, respCode, respMsg sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(&p.ID, &p.OrderID, &p.Mode, &p.Status, &amount, &bankCode,
		&redirectURL, &txnRef, &respCode, &respMsg, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing payment amount: %w", err)
	}
	p.Amount = d
	p.BankCode = strPtr(bankCode)
	p.RedirectURL = strPtr(redirectURL)
	p.TransactionRef = strPtr(txnRef)
	p.ResponseCode = strPtr(respCode)
	p.ResponseMessage = strPtr(respMsg)
	p.PaidAt = timePtr(paidAt)

	return &p, nil
}

// CreatePayment inserts a new payment. The UNIQUE constraint on order_id
// enforces the one-payment-per-order rule at the storage layer.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.OrderID, payment.Mode, payment.Status,
		payment.Amount.String(), strVal(payment.BankCode), strVal(payment.RedirectURL),
		strVal(payment.TransactionRef), strVal(payment.ResponseCode),
		strVal(payment.ResponseMessage), timeVal(payment.PaidAt),
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.ErrDuplicatePayment
		}
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

// GetPaymentByOrder retrieves the payment attached to an order.
func (s *SQLiteStore) GetPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ?`, orderID)
	payment, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return payment, nil
}

const paymentUpdateSet = `mode = ?, status = ?, amount = ?, bank_code = ?,
	redirect_url = ?, transaction_ref = ?, response_code = ?, response_message = ?,
	paid_at = ?, updated_at = ?`

func paymentUpdateArgs(p *models.Payment) []interface{} {
	return []interface{}{
		p.Mode, p.Status, p.Amount.String(), strVal(p.BankCode),
		strVal(p.RedirectURL), strVal(p.TransactionRef), strVal(p.ResponseCode),
		strVal(p.ResponseMessage), timeVal(p.PaidAt), p.UpdatedAt,
	}
}

// UpdatePayment updates all mutable fields of a payment.
func (s *SQLiteStore) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now()
	args := append(paymentUpdateArgs(payment), payment.ID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET `+paymentUpdateSet+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrPaymentNotFound
	}
	return nil
}

// UpdatePaymentIfStatus updates the payment only when its stored status still
// matches expect.
func (s *SQLiteStore) UpdatePaymentIfStatus(ctx context.Context, payment *models.Payment, expect models.PaymentStatus) (bool, error) {
	payment.UpdatedAt = time.Now()
	args := append(paymentUpdateArgs(payment), payment.ID, expect)
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET `+paymentUpdateSet+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("updating payment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ApplyPaymentCallback persists a payment-callback outcome: the payment row
// and its order row change in one transaction.
func (s *SQLiteStore) ApplyPaymentCallback(ctx context.Context, payment *models.Payment, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	payment.UpdatedAt = now
	order.UpdatedAt = now

	args := append(paymentUpdateArgs(payment), payment.ID)
	if _, err := tx.ExecContext(ctx,
		`UPDATE payments SET `+paymentUpdateSet+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("updating payment: %w", err)
	}

	oargs := append(orderUpdateArgs(order), order.ID)
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET `+orderUpdateSet+` WHERE id = ?`, oargs...); err != nil {
		return fmt.Errorf("updating order: %w", err)
	}

	return tx.Commit()
}

// ---- mandates ----

const mandateColumns = `id, advisor_id, client_id, exchange_mandate_id, umrn, type, status,
	amount, bank_account_id, bank_code, start_date, end_date, auth_url,
	response_code, response_message, created_at, updated_at`

func scanMandate(row rowScanner) (*models.Mandate, error) {
	var m models.Mandate
	var amount string
	var exchID, umrn, bankAcct, bankCode, authURL, respCode, respMsg sql.NullString
	var startDate, endDate sql.NullTime

	err := row.Scan(&m.ID, &m.AdvisorID, &m.ClientID, &exchID, &umrn, &m.Type, &m.Status,
		&amount, &bankAcct, &bankCode, &startDate, &endDate, &authURL,
		&respCode, &respMsg, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing mandate amount: %w", err)
	}
	m.Amount = d
	m.ExchangeMandateID = strPtr(exchID)
	m.UMRN = strPtr(umrn)
	m.BankAccountID = strPtr(bankAcct)
	m.BankCode = strPtr(bankCode)
	m.StartDate = timePtr(startDate)
	m.EndDate = timePtr(endDate)
	m.AuthURL = strPtr(authURL)
	m.ResponseCode = strPtr(respCode)
	m.ResponseMessage = strPtr(respMsg)

	return &m, nil
}

// CreateMandate inserts a new mandate.
func (s *SQLiteStore) CreateMandate(ctx context.Context, mandate *models.Mandate) error {
	now := time.Now()
	mandate.CreatedAt = now
	mandate.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mandates (`+mandateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mandate.ID, mandate.AdvisorID, mandate.ClientID,
		strVal(mandate.ExchangeMandateID), strVal(mandate.UMRN), mandate.Type,
		mandate.Status, mandate.Amount.String(), strVal(mandate.BankAccountID),
		strVal(mandate.BankCode), timeVal(mandate.StartDate), timeVal(mandate.EndDate),
		strVal(mandate.AuthURL), strVal(mandate.ResponseCode),
		strVal(mandate.ResponseMessage), mandate.CreatedAt, mandate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting mandate: %w", err)
	}
	return nil
}

// GetMandate retrieves a mandate by ID.
func (s *SQLiteStore) GetMandate(ctx context.Context, id string) (*models.Mandate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mandateColumns+` FROM mandates WHERE id = ?`, id)
	mandate, err := scanMandate(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrMandateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mandate: %w", err)
	}
	return mandate, nil
}

// GetMandateByExchangeID retrieves a mandate by its exchange-assigned ID.
func (s *SQLiteStore) GetMandateByExchangeID(ctx context.Context, exchangeMandateID string) (*models.Mandate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mandateColumns+` FROM mandates WHERE exchange_mandate_id = ?`, exchangeMandateID)
	mandate, err := scanMandate(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrMandateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mandate: %w", err)
	}
	return mandate, nil
}

// UpdateMandate updates all mutable fields of a mandate.
func (s *SQLiteStore) UpdateMandate(ctx context.Context, mandate *models.Mandate) error {
	mandate.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE mandates SET exchange_mandate_id = ?, umrn = ?, type = ?, status = ?,
		 amount = ?, bank_account_id = ?, bank_code = ?, start_date = ?, end_date = ?,
		 auth_url = ?, response_code = ?, response_message = ?, updated_at = ?
		 WHERE id = ?`,
		strVal(mandate.ExchangeMandateID), strVal(mandate.UMRN), mandate.Type,
		mandate.Status, mandate.Amount.String(), strVal(mandate.BankAccountID),
		strVal(mandate.BankCode), timeVal(mandate.StartDate), timeVal(mandate.EndDate),
		strVal(mandate.AuthURL), strVal(mandate.ResponseCode),
		strVal(mandate.ResponseMessage), mandate.UpdatedAt, mandate.ID)
	if err != nil {
		return fmt.Errorf("updating mandate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrMandateNotFound
	}
	return nil
}

// ListMandates returns mandates matching the filter, newest first.
func (s *SQLiteStore) ListMandates(ctx context.Context, filter MandateFilter) ([]models.Mandate, error) {
	var where []string
	var args []interface{}

	if filter.AdvisorID != "" {
		where = append(where, "advisor_id = ?")
		args = append(args, filter.AdvisorID)
	}
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mandateColumns+` FROM mandates`+clause+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mandates: %w", err)
	}
	defer rows.Close()

	var mandates []models.Mandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mandate: %w", err)
		}
		mandates = append(mandates, *m)
	}
	return mandates, rows.Err()
}

// ListMandatesForPoll returns CREATED/SUBMITTED mandates with an exchange
// mandate ID, oldest-updated first.
func (s *SQLiteStore) ListMandatesForPoll(ctx context.Context, limit int) ([]models.Mandate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mandateColumns+` FROM mandates
		 WHERE exchange_mandate_id IS NOT NULL
		   AND status IN ('CREATED', 'SUBMITTED')
		 ORDER BY updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pollable mandates: %w", err)
	}
	defer rows.Close()

	var mandates []models.Mandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mandate: %w", err)
		}
		mandates = append(mandates, *m)
	}
	return mandates, rows.Err()
}

// ---- child orders ----

// UpsertChildOrder inserts or updates an installment by (order, installment).
func (s *SQLiteStore) UpsertChildOrder(ctx context.Context, child *models.ChildOrder) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO child_orders (order_id, installment_no, exchange_order_number,
		   amount, units, nav, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id, installment_no) DO UPDATE SET
		   exchange_order_number = excluded.exchange_order_number,
		   amount = excluded.amount,
		   units = excluded.units,
		   nav = excluded.nav,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		child.OrderID, child.InstallmentNo, child.ExchangeOrderNumber,
		decVal(child.Amount), decVal(child.Units), decVal(child.NAV),
		child.Status, now, now)
	if err != nil {
		return fmt.Errorf("upserting child order: %w", err)
	}
	return nil
}

// ListChildOrders returns the installments of a plan ordered by installment number.
func (s *SQLiteStore) ListChildOrders(ctx context.Context, orderID string) ([]models.ChildOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, installment_no, exchange_order_number, amount, units,
		   nav, status, created_at, updated_at
		 FROM child_orders WHERE order_id = ? ORDER BY installment_no ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying child orders: %w", err)
	}
	defer rows.Close()

	var children []models.ChildOrder
	for rows.Next() {
		var c models.ChildOrder
		var amount, units, nav sql.NullString
		if err := rows.Scan(&c.ID, &c.OrderID, &c.InstallmentNo, &c.ExchangeOrderNumber,
			&amount, &units, &nav, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning child order: %w", err)
		}
		c.Amount = decPtr(amount)
		c.Units = decPtr(units)
		c.NAV = decPtr(nav)
		children = append(children, c)
	}
	return children, rows.Err()
}

// ---- scheme and bank masters ----

// UpsertScheme inserts or replaces one scheme-master row.
func (s *SQLiteStore) UpsertScheme(ctx context.Context, scheme *models.SchemeMaster) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheme_master (scheme_code, scheme_name, isin, amc_code,
		   purchase_allowed, redemption_allowed, sip_allowed,
		   min_purchase_amount, min_sip_amount, last_synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (scheme_code) DO UPDATE SET
		   scheme_name = excluded.scheme_name,
		   isin = excluded.isin,
		   amc_code = excluded.amc_code,
		   purchase_allowed = excluded.purchase_allowed,
		   redemption_allowed = excluded.redemption_allowed,
		   sip_allowed = excluded.sip_allowed,
		   min_purchase_amount = excluded.min_purchase_amount,
		   min_sip_amount = excluded.min_sip_amount,
		   last_synced_at = excluded.last_synced_at`,
		scheme.SchemeCode, scheme.SchemeName, scheme.ISIN, scheme.AMCCode,
		scheme.PurchaseAllowed, scheme.RedemptionAllowed, scheme.SIPAllowed,
		decVal(scheme.MinPurchaseAmount), decVal(scheme.MinSIPAmount),
		scheme.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("upserting scheme: %w", err)
	}
	return nil
}

// SearchSchemes returns schemes whose name or code matches the query,
// paginated, with the total count.
func (s *SQLiteStore) SearchSchemes(ctx context.Context, query string, page, limit int) ([]models.SchemeMaster, int, error) {
	pattern := "%" + query + "%"

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheme_master WHERE scheme_name LIKE ? OR scheme_code LIKE ?`,
		pattern, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting schemes: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT scheme_code, scheme_name, isin, amc_code, purchase_allowed,
		   redemption_allowed, sip_allowed, min_purchase_amount, min_sip_amount,
		   last_synced_at
		 FROM scheme_master
		 WHERE scheme_name LIKE ? OR scheme_code LIKE ?
		 ORDER BY scheme_name ASC LIMIT ? OFFSET ?`,
		pattern, pattern, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("querying schemes: %w", err)
	}
	defer rows.Close()

	var schemes []models.SchemeMaster
	for rows.Next() {
		var sm models.SchemeMaster
		var isin, amc sql.NullString
		var minPurchase, minSIP sql.NullString
		if err := rows.Scan(&sm.SchemeCode, &sm.SchemeName, &isin, &amc,
			&sm.PurchaseAllowed, &sm.RedemptionAllowed, &sm.SIPAllowed,
			&minPurchase, &minSIP, &sm.LastSyncedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning scheme: %w", err)
		}
		sm.ISIN = isin.String
		sm.AMCCode = amc.String
		sm.MinPurchaseAmount = decPtr(minPurchase)
		sm.MinSIPAmount = decPtr(minSIP)
		schemes = append(schemes, sm)
	}
	return schemes, total, rows.Err()
}

// ListBanks returns active banks allowing the given payment mode. An empty
// mode returns all active banks.
func (s *SQLiteStore) ListBanks(ctx context.Context, mode models.PaymentMode) ([]models.BankMaster, error) {
	query := `SELECT bank_code, bank_name, direct_allowed, nodal_allowed,
	   neft_allowed, upi_allowed, active FROM bank_master WHERE active = 1`
	switch mode {
	case models.PaymentModeDirect:
		query += ` AND direct_allowed = 1`
	case models.PaymentModeNodal:
		query += ` AND nodal_allowed = 1`
	case models.PaymentModeNEFT:
		query += ` AND neft_allowed = 1`
	case models.PaymentModeUPI:
		query += ` AND upi_allowed = 1`
	}
	query += ` ORDER BY bank_name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying banks: %w", err)
	}
	defer rows.Close()

	var banks []models.BankMaster
	for rows.Next() {
		var b models.BankMaster
		if err := rows.Scan(&b.BankCode, &b.BankName, &b.DirectAllowed,
			&b.NodalAllowed, &b.NEFTAllowed, &b.UPIAllowed, &b.Active); err != nil {
			return nil, fmt.Errorf("scanning bank: %w", err)
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// ---- client registrations ----

// UpsertRegistration inserts or replaces a client's UCC registration.
func (s *SQLiteStore) UpsertRegistration(ctx context.Context, reg *models.ClientRegistration) error {
	now := time.Now()
	reg.UpdatedAt = now
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_registrations (client_id, advisor_id, client_code,
		   status, fatca_status, tax_status, holding_nature, occupation_code,
		   response_code, response_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET
		   client_code = excluded.client_code,
		   status = excluded.status,
		   tax_status = excluded.tax_status,
		   holding_nature = excluded.holding_nature,
		   occupation_code = excluded.occupation_code,
		   response_code = excluded.response_code,
		   response_message = excluded.response_message,
		   updated_at = excluded.updated_at`,
		reg.ClientID, reg.AdvisorID, reg.ClientCode,
		string(reg.Status), string(reg.FATCAStatus), reg.TaxStatus,
		reg.HoldingNature, reg.OccupationCode,
		strVal(reg.ResponseCode), strVal(reg.ResponseMessage),
		reg.CreatedAt, reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting registration: %w", err)
	}
	return nil
}

// GetRegistration retrieves a client's UCC registration.
func (s *SQLiteStore) GetRegistration(ctx context.Context, clientID string) (*models.ClientRegistration, error) {
	var r models.ClientRegistration
	var responseCode, responseMessage sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT client_id, advisor_id, client_code, status, fatca_status,
		   tax_status, holding_nature, occupation_code, response_code,
		   response_message, created_at, updated_at
		 FROM client_registrations WHERE client_id = ?`, clientID).
		Scan(&r.ClientID, &r.AdvisorID, &r.ClientCode, &r.Status, &r.FATCAStatus,
			&r.TaxStatus, &r.HoldingNature, &r.OccupationCode, &responseCode,
			&responseMessage, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying registration: %w", err)
	}

	r.ResponseCode = strPtr(responseCode)
	r.ResponseMessage = strPtr(responseMessage)
	return &r, nil
}

// UpdateFATCAStatus records the FATCA declaration outcome for a client.
func (s *SQLiteStore) UpdateFATCAStatus(ctx context.Context, clientID string, status models.FATCAStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE client_registrations SET fatca_status = ?, updated_at = ?
		 WHERE client_id = ?`, string(status), time.Now(), clientID)
	if err != nil {
		return fmt.Errorf("updating fatca status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrRegistrationNotFound
	}
	return nil
}

// ---- credentials ----

// UpsertCredential inserts or replaces one advisor's credential set.
func (s *SQLiteStore) UpsertCredential(ctx context.Context, cred *models.Credential) error {
	now := time.Now()
	cred.UpdatedAt = now
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (advisor_id, member_code, login_id, arn, euin,
		   password_enc, passkey_enc, active, last_tested_at, test_status,
		   created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (advisor_id) DO UPDATE SET
		   member_code = excluded.member_code,
		   login_id = excluded.login_id,
		   arn = excluded.arn,
		   euin = excluded.euin,
		   password_enc = excluded.password_enc,
		   passkey_enc = excluded.passkey_enc,
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		cred.AdvisorID, cred.MemberCode, cred.LoginID, cred.ARN, strVal(cred.EUIN),
		cred.PasswordEnc, cred.PassKeyEnc, cred.Active,
		timeVal(cred.LastTestedAt), strVal(cred.TestStatus),
		cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// GetCredential retrieves an advisor's credential set.
func (s *SQLiteStore) GetCredential(ctx context.Context, advisorID string) (*models.Credential, error) {
	var c models.Credential
	var euin, testStatus sql.NullString
	var lastTested sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT advisor_id, member_code, login_id, arn, euin, password_enc,
		   passkey_enc, active, last_tested_at, test_status, created_at, updated_at
		 FROM credentials WHERE advisor_id = ?`, advisorID).
		Scan(&c.AdvisorID, &c.MemberCode, &c.LoginID, &c.ARN, &euin, &c.PasswordEnc,
			&c.PassKeyEnc, &c.Active, &lastTested, &testStatus, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrCredentialsNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	c.EUIN = strPtr(euin)
	c.TestStatus = strPtr(testStatus)
	c.LastTestedAt = timePtr(lastTested)
	return &c, nil
}

// UpdateCredentialTest records the outcome of a credential test.
func (s *SQLiteStore) UpdateCredentialTest(ctx context.Context, advisorID, status string) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET last_tested_at = ?, test_status = ?, updated_at = ?
		 WHERE advisor_id = ?`, now, status, now, advisorID)
	if err != nil {
		return fmt.Errorf("updating credential test: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrCredentialsNotConfigured
	}
	return nil
}

// ListActiveAdvisors returns the IDs of advisors with active credentials.
func (s *SQLiteStore) ListActiveAdvisors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT advisor_id FROM credentials WHERE active = 1 ORDER BY advisor_id`)
	if err != nil {
		return nil, fmt.Errorf("querying advisors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning advisor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- session tokens ----

// GetSessionToken retrieves the cached token for (user, purpose), if any.
func (s *SQLiteStore) GetSessionToken(ctx context.Context, userID string, purpose models.SessionPurpose) (*models.SessionToken, error) {
	var t models.SessionToken
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, purpose, token, issued_at, expires_at
		 FROM session_tokens WHERE user_id = ? AND purpose = ?`, userID, purpose).
		Scan(&t.UserID, &t.Purpose, &t.Token, &t.IssuedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session token: %w", err)
	}
	return &t, nil
}

// PutSessionToken inserts or replaces the token for (user, purpose).
func (s *SQLiteStore) PutSessionToken(ctx context.Context, token *models.SessionToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (user_id, purpose, token, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, purpose) DO UPDATE SET
		   token = excluded.token,
		   issued_at = excluded.issued_at,
		   expires_at = excluded.expires_at`,
		token.UserID, token.Purpose, token.Token, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storing session token: %w", err)
	}
	return nil
}

// DeleteSessionTokens drops every cached token for a user, across purposes.
func (s *SQLiteStore) DeleteSessionTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting session tokens: %w", err)
	}
	return nil
}
