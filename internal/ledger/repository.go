package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-logistics/meridian/internal/platform/db"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// Repository persists ledger entries in PostgreSQL. There is no update or
// delete path for entries; the table is insert-only. The only mutable row an
// append touches is the owning invoice's paid flag.
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
		return fn(ctx, &ledgerTx{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("ledger: %w", shared.ErrConcurrencyConflict)
	}
	return err
}

// ListByInvoice returns entries for an invoice in append order.
func (r *Repository) ListByInvoice(ctx context.Context, invoiceID int64) ([]Entry, error) {
	query := `
		SELECT id, invoice_id, transaction_type, amount, transaction_date, note, created_at
		FROM transaction_ledger
		WHERE invoice_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Type, &e.Amount, &e.TransactionDate, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumByInvoice returns the cumulative net amount for an invoice.
func (r *Repository) SumByInvoice(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transaction_ledger WHERE invoice_id = $1`,
		invoiceID).Scan(&sum)
	return sum, err
}

// SumByInvoiceAndType returns the cumulative amount for one entry type.
func (r *Repository) SumByInvoiceAndType(ctx context.Context, invoiceID int64, entryType EntryType) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transaction_ledger WHERE invoice_id = $1 AND transaction_type = $2`,
		invoiceID, entryType).Scan(&sum)
	return sum, err
}

// SumPayments returns payment credits net of refunds, excluding loan entries.
func (r *Repository) SumPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transaction_ledger
		 WHERE invoice_id = $1 AND transaction_type IN ($2, $3)`,
		invoiceID, TypePaymentReceived, TypeRefund).Scan(&sum)
	return sum, err
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (float64, bool, error) {
	var total float64
	var paid bool
	err := t.tx.QueryRow(ctx,
		`SELECT total_amount, paid FROM invoices WHERE id = $1 FOR UPDATE`,
		invoiceID).Scan(&total, &paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("ledger: invoice %d: %w", invoiceID, shared.ErrNotFound)
	}
	if err != nil {
		return 0, false, err
	}
	return total, paid, nil
}

func (t *ledgerTx) Insert(ctx context.Context, input AppendInput) (*Entry, error) {
	query := `
		INSERT INTO transaction_ledger (invoice_id, transaction_type, amount, transaction_date, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`

	var e Entry
	err := t.tx.QueryRow(ctx, query,
		input.InvoiceID, input.Type, input.Amount, input.TransactionDate, input.Note,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert entry: %w", err)
	}
	e.InvoiceID = input.InvoiceID
	e.Type = input.Type
	e.Amount = input.Amount
	e.TransactionDate = input.TransactionDate
	e.Note = input.Note
	return &e, nil
}

func (t *ledgerTx) SumByInvoice(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transaction_ledger WHERE invoice_id = $1`,
		invoiceID).Scan(&sum)
	return sum, err
}

func (t *ledgerTx) SetInvoicePaid(ctx context.Context, invoiceID int64, paid bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET paid = $2 WHERE id = $1`, invoiceID, paid)
	return err
}
