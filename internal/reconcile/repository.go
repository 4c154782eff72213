package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-logistics/meridian/internal/ledger"
	"github.com/meridian-logistics/meridian/internal/orders"
	"github.com/meridian-logistics/meridian/internal/platform/db"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// Repository persists payment records and runs reconciliation transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a serializable transaction. Isolation
// conflicts are translated so the service can retry them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("reconcile: %w", shared.ErrConcurrencyConflict)
	}
	return err
}

// GetPaymentRecord looks up a record by its unique transaction number.
func (r *Repository) GetPaymentRecord(ctx context.Context, transactionNumber string) (*PaymentRecord, error) {
	query := `
		SELECT id, transaction_number, status, amount, event_timestamp, description,
			from_party, to_party, reference, invoice_id, outcome, created_at
		FROM payment_records
		WHERE transaction_number = $1`

	var rec PaymentRecord
	var invoiceID pgtype.Int8
	err := r.pool.QueryRow(ctx, query, transactionNumber).Scan(
		&rec.ID, &rec.TransactionNumber, &rec.Status, &rec.Amount, &rec.Timestamp,
		&rec.Description, &rec.FromParty, &rec.ToParty, &rec.Reference,
		&invoiceID, &rec.Outcome, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reconcile: payment %s: %w", transactionNumber, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if invoiceID.Valid {
		rec.InvoiceID = &invoiceID.Int64
	}
	return &rec, nil
}

// GetInvoiceSnapshot reads the invoice's current derived state for replays.
func (r *Repository) GetInvoiceSnapshot(ctx context.Context, invoiceID int64) (float64, float64, bool, orders.PaymentStatus, error) {
	query := `
		SELECT i.total_amount, i.paid, p.payment_status,
			COALESCE((SELECT SUM(amount) FROM transaction_ledger WHERE invoice_id = i.id), 0)
		FROM invoices i
		JOIN pickups p ON p.invoice_id = i.id
		WHERE i.id = $1`

	var total, balance float64
	var paid bool
	var status orders.PaymentStatus
	err := r.pool.QueryRow(ctx, query, invoiceID).Scan(&total, &paid, &status, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, "", fmt.Errorf("reconcile: invoice %d: %w", invoiceID, shared.ErrNotFound)
	}
	if err != nil {
		return 0, 0, false, "", err
	}
	return total, balance, paid, status, nil
}

// ListUnresolved returns the oldest unresolved records for the retry sweep.
func (r *Repository) ListUnresolved(ctx context.Context, limit int) ([]PaymentRecord, error) {
	query := `
		SELECT id, transaction_number, status, amount, event_timestamp, description,
			from_party, to_party, reference, invoice_id, outcome, created_at
		FROM payment_records
		WHERE outcome = $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, OutcomeUnresolved, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		var invoiceID pgtype.Int8
		err := rows.Scan(
			&rec.ID, &rec.TransactionNumber, &rec.Status, &rec.Amount, &rec.Timestamp,
			&rec.Description, &rec.FromParty, &rec.ToParty, &rec.Reference,
			&invoiceID, &rec.Outcome, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if invoiceID.Valid {
			rec.InvoiceID = &invoiceID.Int64
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertPaymentRecord(ctx context.Context, record PaymentRecord) (int64, error) {
	query := `
		INSERT INTO payment_records (
			transaction_number, status, amount, event_timestamp, description,
			from_party, to_party, reference, outcome, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		record.TransactionNumber, record.Status, record.Amount, record.Timestamp,
		record.Description, record.FromParty, record.ToParty, record.Reference, record.Outcome,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("reconcile: payment %s: %w", record.TransactionNumber, shared.ErrDuplicatePayment)
		}
		return 0, err
	}
	return id, nil
}

// ResolveInvoiceForUpdate matches the event's reference, falling back to its
// description, against invoice reference numbers and locks the winning row.
func (t *txRepo) ResolveInvoiceForUpdate(ctx context.Context, reference, description string) (*orders.Invoice, error) {
	for _, candidate := range []string{reference, description} {
		if candidate == "" {
			continue
		}
		inv, err := t.invoiceByReferenceForUpdate(ctx, candidate)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("reconcile: no invoice for reference %q: %w", reference, shared.ErrNotFound)
}

func (t *txRepo) invoiceByReferenceForUpdate(ctx context.Context, reference string) (*orders.Invoice, error) {
	query := `
		SELECT id, reference_number, total_amount, paid, created_at
		FROM invoices
		WHERE reference_number = $1
		FOR UPDATE`

	var inv orders.Invoice
	err := t.tx.QueryRow(ctx, query, reference).
		Scan(&inv.ID, &inv.ReferenceNumber, &inv.TotalAmount, &inv.Paid, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *txRepo) GetPickupForUpdate(ctx context.Context, invoiceID int64) (*orders.Pickup, error) {
	query := `
		SELECT id, company_id, invoice_id, unit_price, phone_units, order_date,
			recipient, pickup_location, delivery_location, payment_status,
			created_at, updated_at
		FROM pickups
		WHERE invoice_id = $1
		FOR UPDATE`

	var p orders.Pickup
	var pickupLoc, deliveryLoc pgtype.Text
	err := t.tx.QueryRow(ctx, query, invoiceID).Scan(
		&p.ID, &p.CompanyID, &p.InvoiceID, &p.UnitPrice, &p.PhoneUnits, &p.OrderDate,
		&p.Recipient, &pickupLoc, &deliveryLoc, &p.PaymentStatus, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reconcile: pickup for invoice %d: %w", invoiceID, shared.ErrNotFound)
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

func (t *txRepo) AppendLedgerEntry(ctx context.Context, input ledger.AppendInput) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transaction_ledger (invoice_id, transaction_type, amount, transaction_date, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		input.InvoiceID, input.Type, input.Amount, input.TransactionDate, input.Note)
	return err
}

func (t *txRepo) SumLedger(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transaction_ledger WHERE invoice_id = $1`,
		invoiceID).Scan(&sum)
	return sum, err
}

func (t *txRepo) SetInvoicePaid(ctx context.Context, invoiceID int64, paid bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET paid = $2 WHERE id = $1`, invoiceID, paid)
	return err
}

func (t *txRepo) UpdatePickupPaymentStatus(ctx context.Context, pickupID int64, status orders.PaymentStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE pickups SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		pickupID, status)
	return err
}

func (t *txRepo) MarkRecordResolution(ctx context.Context, recordID int64, invoiceID *int64, outcome Outcome) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE payment_records SET invoice_id = $2, outcome = $3 WHERE id = $1`,
		recordID, invoiceID, outcome)
	return err
}
