package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-logistics/meridian/internal/platform/db"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// Repository persists orders, invoices and logistics details in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// CreateCompany inserts a company. Company names are unique.
func (r *Repository) CreateCompany(ctx context.Context, input CompanyInput) (*Company, error) {
	query := `
		INSERT INTO companies (name, bank_account_ref, allow_partial_unlock, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`

	var c Company
	err := r.pool.QueryRow(ctx, query, input.Name, input.BankAccountRef, input.AllowPartialUnlock).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("orders: company %q already exists", input.Name)
		}
		return nil, fmt.Errorf("orders: create company: %w", err)
	}
	c.Name = input.Name
	c.BankAccountRef = input.BankAccountRef
	c.AllowPartialUnlock = input.AllowPartialUnlock
	return &c, nil
}

// GetCompany retrieves a company by id.
func (r *Repository) GetCompany(ctx context.Context, id int64) (*Company, error) {
	query := `
		SELECT id, name, bank_account_ref, allow_partial_unlock, created_at
		FROM companies WHERE id = $1`

	var c Company
	var bankRef pgtype.Text
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.Name, &bankRef, &c.AllowPartialUnlock, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("orders: company %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if bankRef.Valid {
		c.BankAccountRef = &bankRef.String
	}
	return &c, nil
}

// ListCompanies returns all companies.
func (r *Repository) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, bank_account_ref, allow_partial_unlock, created_at
		FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		var c Company
		var bankRef pgtype.Text
		if err := rows.Scan(&c.ID, &c.Name, &bankRef, &c.AllowPartialUnlock, &c.CreatedAt); err != nil {
			return nil, err
		}
		if bankRef.Valid {
			c.BankAccountRef = &bankRef.String
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// GetPickup retrieves a pickup by id.
func (r *Repository) GetPickup(ctx context.Context, id int64) (*Pickup, error) {
	return scanPickupRow(r.pool.QueryRow(ctx, pickupSelect+` WHERE id = $1`, id), id)
}

// GetPickupByInvoice retrieves the pickup billed by an invoice.
func (r *Repository) GetPickupByInvoice(ctx context.Context, invoiceID int64) (*Pickup, error) {
	return scanPickupRow(r.pool.QueryRow(ctx, pickupSelect+` WHERE invoice_id = $1`, invoiceID), invoiceID)
}

// GetInvoice retrieves an invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	query := `
		SELECT id, reference_number, total_amount, paid, created_at
		FROM invoices WHERE id = $1`

	var inv Invoice
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&inv.ID, &inv.ReferenceNumber, &inv.TotalAmount, &inv.Paid, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("orders: invoice %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoiceByReference retrieves an invoice by its reference number.
func (r *Repository) GetInvoiceByReference(ctx context.Context, reference string) (*Invoice, error) {
	query := `
		SELECT id, reference_number, total_amount, paid, created_at
		FROM invoices WHERE reference_number = $1`

	var inv Invoice
	err := r.pool.QueryRow(ctx, query, reference).
		Scan(&inv.ID, &inv.ReferenceNumber, &inv.TotalAmount, &inv.Paid, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("orders: invoice reference %s: %w", reference, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetLogisticsDetailsByPickup retrieves the fulfilment record for a pickup.
func (r *Repository) GetLogisticsDetailsByPickup(ctx context.Context, pickupID int64) (*LogisticsDetails, error) {
	return scanDetailsRow(
		r.pool.QueryRow(ctx, detailsSelect+` WHERE pickup_id = $1`, pickupID), pickupID)
}

// ListPickups returns pickups joined with their invoices, newest first.
func (r *Repository) ListPickups(ctx context.Context, companyID int64) ([]PickupWithInvoice, error) {
	query := `
		SELECT p.id, p.company_id, p.invoice_id, p.unit_price, p.phone_units, p.order_date,
			p.recipient, p.pickup_location, p.delivery_location, p.payment_status,
			p.created_at, p.updated_at,
			i.id, i.reference_number, i.total_amount, i.paid, i.created_at
		FROM pickups p
		JOIN invoices i ON i.id = p.invoice_id`

	args := []any{}
	if companyID > 0 {
		query += ` WHERE p.company_id = $1`
		args = append(args, companyID)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PickupWithInvoice
	for rows.Next() {
		var pw PickupWithInvoice
		var pickupLoc, deliveryLoc pgtype.Text
		err := rows.Scan(
			&pw.ID, &pw.CompanyID, &pw.InvoiceID, &pw.UnitPrice, &pw.PhoneUnits, &pw.OrderDate,
			&pw.Recipient, &pickupLoc, &deliveryLoc, &pw.PaymentStatus,
			&pw.CreatedAt, &pw.UpdatedAt,
			&pw.Invoice.ID, &pw.Invoice.ReferenceNumber, &pw.Invoice.TotalAmount,
			&pw.Invoice.Paid, &pw.Invoice.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if pickupLoc.Valid {
			pw.PickupLocation = &pickupLoc.String
		}
		if deliveryLoc.Valid {
			pw.DeliveryLocation = &deliveryLoc.String
		}
		out = append(out, pw)
	}
	return out, rows.Err()
}

const pickupSelect = `
	SELECT id, company_id, invoice_id, unit_price, phone_units, order_date,
		recipient, pickup_location, delivery_location, payment_status,
		created_at, updated_at
	FROM pickups`

const detailsSelect = `
	SELECT id, pickup_id, service_type, quantity, scheduled_pickup_at, scheduled_delivery_at,
		simulated_pickup_at, simulated_delivery_at, status, created_at, updated_at
	FROM logistics_details`

func scanPickupRow(row pgx.Row, id int64) (*Pickup, error) {
	var p Pickup
	var pickupLoc, deliveryLoc pgtype.Text
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.InvoiceID, &p.UnitPrice, &p.PhoneUnits, &p.OrderDate,
		&p.Recipient, &pickupLoc, &deliveryLoc, &p.PaymentStatus, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("orders: pickup %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if pickupLoc.Valid {
		p.PickupLocation = &pickupLoc.String
	}
	if deliveryLoc.Valid {
		p.DeliveryLocation = &deliveryLoc.String
	}
	return &p, nil
}

func scanDetailsRow(row pgx.Row, pickupID int64) (*LogisticsDetails, error) {
	var d LogisticsDetails
	var simPickup, simDelivery pgtype.Timestamptz
	err := row.Scan(
		&d.ID, &d.PickupID, &d.ServiceType, &d.Quantity,
		&d.ScheduledPickupAt, &d.ScheduledDeliveryAt,
		&simPickup, &simDelivery, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("orders: logistics details for pickup %d: %w", pickupID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if simPickup.Valid {
		d.SimulatedPickupAt = &simPickup.Time
	}
	if simDelivery.Valid {
		d.SimulatedDeliveryAt = &simDelivery.Time
	}
	return &d, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) CreateInvoice(ctx context.Context, reference string, totalAmount float64) (*Invoice, error) {
	query := `
		INSERT INTO invoices (reference_number, total_amount, paid, created_at)
		VALUES ($1, $2, FALSE, NOW())
		RETURNING id, created_at`

	var inv Invoice
	if err := t.tx.QueryRow(ctx, query, reference, totalAmount).Scan(&inv.ID, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.ReferenceNumber = reference
	inv.TotalAmount = totalAmount
	return &inv, nil
}

func (t *txRepo) CreatePickup(ctx context.Context, pickup Pickup) (int64, error) {
	query := `
		INSERT INTO pickups (
			company_id, invoice_id, unit_price, phone_units, order_date, recipient,
			pickup_location, delivery_location, payment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		pickup.CompanyID, pickup.InvoiceID, pickup.UnitPrice, pickup.PhoneUnits,
		pickup.OrderDate, pickup.Recipient, pickup.PickupLocation, pickup.DeliveryLocation,
		pickup.PaymentStatus,
	).Scan(&id)
	return id, err
}

func (t *txRepo) CreateLogisticsDetails(ctx context.Context, details LogisticsDetails) (int64, error) {
	query := `
		INSERT INTO logistics_details (
			pickup_id, service_type, quantity, scheduled_pickup_at, scheduled_delivery_at,
			simulated_pickup_at, simulated_delivery_at, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		details.PickupID, details.ServiceType, details.Quantity,
		details.ScheduledPickupAt, details.ScheduledDeliveryAt,
		details.SimulatedPickupAt, details.SimulatedDeliveryAt, details.Status,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetPickupForUpdate(ctx context.Context, id int64) (*Pickup, error) {
	return scanPickupRow(t.tx.QueryRow(ctx, pickupSelect+` WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *txRepo) GetLogisticsDetailsForUpdate(ctx context.Context, pickupID int64) (*LogisticsDetails, error) {
	return scanDetailsRow(
		t.tx.QueryRow(ctx, detailsSelect+` WHERE pickup_id = $1 FOR UPDATE`, pickupID), pickupID)
}

func (t *txRepo) UpdatePaymentStatus(ctx context.Context, pickupID int64, status PaymentStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE pickups SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		pickupID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: pickup %d: %w", pickupID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) UpdateLogisticsStatus(ctx context.Context, detailsID int64, status LogisticsStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE logistics_details SET status = $2, updated_at = NOW() WHERE id = $1`,
		detailsID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: logistics details %d: %w", detailsID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) UpdateSimulatedTimes(ctx context.Context, detailsID int64, pickupAt, deliveryAt *time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE logistics_details
		SET simulated_pickup_at = COALESCE($2, simulated_pickup_at),
			simulated_delivery_at = COALESCE($3, simulated_delivery_at),
			updated_at = NOW()
		WHERE id = $1`,
		detailsID, pickupAt, deliveryAt)
	return err
}
