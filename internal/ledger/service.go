package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// RepositoryPort defines data access methods for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Entry, error)
	SumByInvoice(ctx context.Context, invoiceID int64) (float64, error)
	SumByInvoiceAndType(ctx context.Context, invoiceID int64, entryType EntryType) (float64, error)
	SumPayments(ctx context.Context, invoiceID int64) (float64, error)
}

// TxRepository exposes the row operations of one append transaction. The
// invoice row stays locked so the paid flag and the entry commit together.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (total float64, paid bool, err error)
	Insert(ctx context.Context, input AppendInput) (*Entry, error)
	SumByInvoice(ctx context.Context, invoiceID int64) (float64, error)
	SetInvoicePaid(ctx context.Context, invoiceID int64, paid bool) error
}

// Service guards the append-only discipline of the ledger.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Append records a money movement. The sign of the amount must agree with the
// entry type: credits positive, debits negative. The invoice's cached paid
// flag is recomputed from the new balance in the same transaction, so a refund
// appended after full payment flips it back in the same commit.
func (s *Service) Append(ctx context.Context, input AppendInput) (*Entry, error) {
	if input.InvoiceID == 0 {
		return nil, errors.New("ledger: invoice ID required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("ledger: unknown transaction type %q", input.Type)
	}
	if input.Amount == 0 {
		return nil, errors.New("ledger: amount must be non-zero")
	}
	if input.Type.Credits() && input.Amount < 0 {
		return nil, fmt.Errorf("ledger: %s entries must be positive", input.Type)
	}
	if !input.Type.Credits() && input.Amount > 0 {
		return nil, fmt.Errorf("ledger: %s entries must be negative", input.Type)
	}
	if input.TransactionDate.IsZero() {
		input.TransactionDate = time.Now().UTC()
	}

	var entry *Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total, paid, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		entry, err = tx.Insert(ctx, input)
		if err != nil {
			return err
		}
		balance, err := tx.SumByInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if covered := shared.MoneyGTE(balance, total); covered != paid {
			if err := tx.SetInvoicePaid(ctx, input.InvoiceID, covered); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// InvoiceBalance is the cumulative net amount for an invoice, always computed
// from the entries on demand.
func (s *Service) InvoiceBalance(ctx context.Context, invoiceID int64) (float64, error) {
	return s.repo.SumByInvoice(ctx, invoiceID)
}

// PaymentsNet sums payment credits net of refunds, excluding loan entries.
// The fulfilment gate combines it with LoanDisbursed.
func (s *Service) PaymentsNet(ctx context.Context, invoiceID int64) (float64, error) {
	return s.repo.SumPayments(ctx, invoiceID)
}

// LoanDisbursed sums loan disbursement entries for an invoice; the payment
// gate uses it to evaluate loan-financed arrangements.
func (s *Service) LoanDisbursed(ctx context.Context, invoiceID int64) (float64, error) {
	return s.repo.SumByInvoiceAndType(ctx, invoiceID, TypeLoanDisbursement)
}

// ListByInvoice returns all entries for an invoice in append order.
func (s *Service) ListByInvoice(ctx context.Context, invoiceID int64) ([]Entry, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}
