// Package ledger is the append-only record of money movement per invoice.
package ledger

import "time"

// EntryType enumerates supported money movements.
type EntryType string

const (
	TypeBusinessExpense  EntryType = "BUSINESS_EXPENSE"
	TypePaymentReceived  EntryType = "PAYMENT_RECEIVED"
	TypeRefund           EntryType = "REFUND"
	TypeLoanDisbursement EntryType = "LOAN_DISBURSEMENT"
	TypeLoanRepayment    EntryType = "LOAN_REPAYMENT"
)

// IsValid checks if the entry type is known.
func (t EntryType) IsValid() bool {
	switch t {
	case TypeBusinessExpense, TypePaymentReceived, TypeRefund, TypeLoanDisbursement, TypeLoanRepayment:
		return true
	default:
		return false
	}
}

// Credits reports whether the type increases the invoice balance. Entries of
// credit types carry positive amounts, all others negative.
func (t EntryType) Credits() bool {
	return t == TypePaymentReceived || t == TypeLoanDisbursement
}

// Entry is an immutable signed money movement attributed to an invoice.
// Amendments are new offsetting entries, never in-place edits.
type Entry struct {
	ID              int64     `json:"id"`
	InvoiceID       int64     `json:"invoice_id"`
	Type            EntryType `json:"transaction_type"`
	Amount          float64   `json:"amount"`
	TransactionDate time.Time `json:"transaction_date"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AppendInput creates a ledger entry.
type AppendInput struct {
	InvoiceID       int64     `json:"invoice_id" validate:"required"`
	Type            EntryType `json:"transaction_type" validate:"required"`
	Amount          float64   `json:"amount" validate:"required"`
	TransactionDate time.Time `json:"transaction_date"`
	Note            string    `json:"note,omitempty"`
}
