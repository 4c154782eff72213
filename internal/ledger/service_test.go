package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-logistics/meridian/internal/shared"
)

type fakeInvoice struct {
	total float64
	paid  bool
}

type memoryLedgerRepo struct {
	invoices map[int64]*fakeInvoice
	entries  []Entry
	nextID   int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{invoices: make(map[int64]*fakeInvoice)}
}

func (r *memoryLedgerRepo) addInvoice(id int64, total float64) {
	r.invoices[id] = &fakeInvoice{total: total}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entriesBefore := append([]Entry(nil), r.entries...)
	paidBefore := make(map[int64]bool, len(r.invoices))
	for id, inv := range r.invoices {
		paidBefore[id] = inv.paid
	}
	if err := fn(ctx, (*memoryLedgerTx)(r)); err != nil {
		r.entries = entriesBefore
		for id, paid := range paidBefore {
			r.invoices[id].paid = paid
		}
		return err
	}
	return nil
}

func (r *memoryLedgerRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) SumByInvoice(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (r *memoryLedgerRepo) SumByInvoiceAndType(ctx context.Context, invoiceID int64, entryType EntryType) (float64, error) {
	var sum float64
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID && e.Type == entryType {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (r *memoryLedgerRepo) SumPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID && (e.Type == TypePaymentReceived || e.Type == TypeRefund) {
			sum += e.Amount
		}
	}
	return sum, nil
}

type memoryLedgerTx memoryLedgerRepo

func (t *memoryLedgerTx) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (float64, bool, error) {
	inv, ok := t.invoices[invoiceID]
	if !ok {
		return 0, false, fmt.Errorf("invoice %d: %w", invoiceID, shared.ErrNotFound)
	}
	return inv.total, inv.paid, nil
}

func (t *memoryLedgerTx) Insert(ctx context.Context, input AppendInput) (*Entry, error) {
	t.nextID++
	e := Entry{
		ID:              t.nextID,
		InvoiceID:       input.InvoiceID,
		Type:            input.Type,
		Amount:          input.Amount,
		TransactionDate: input.TransactionDate,
		Note:            input.Note,
		CreatedAt:       time.Now(),
	}
	t.entries = append(t.entries, e)
	return &e, nil
}

func (t *memoryLedgerTx) SumByInvoice(ctx context.Context, invoiceID int64) (float64, error) {
	return (*memoryLedgerRepo)(t).SumByInvoice(ctx, invoiceID)
}

func (t *memoryLedgerTx) SetInvoicePaid(ctx context.Context, invoiceID int64, paid bool) error {
	inv, ok := t.invoices[invoiceID]
	if !ok {
		return shared.ErrNotFound
	}
	inv.paid = paid
	return nil
}

func TestAppendSignDiscipline(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addInvoice(1, 1000)
	svc := NewService(repo)
	ctx := context.Background()

	t.Run("credits must be positive", func(t *testing.T) {
		_, err := svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypePaymentReceived, Amount: 100})
		require.NoError(t, err)
		_, err = svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypePaymentReceived, Amount: -100})
		require.Error(t, err)
		_, err = svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypeLoanDisbursement, Amount: -50})
		require.Error(t, err)
	})

	t.Run("debits must be negative", func(t *testing.T) {
		_, err := svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypeRefund, Amount: -40})
		require.NoError(t, err)
		_, err = svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypeRefund, Amount: 40})
		require.Error(t, err)
		_, err = svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypeBusinessExpense, Amount: 10})
		require.Error(t, err)
		_, err = svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypeLoanRepayment, Amount: 10})
		require.Error(t, err)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		_, err := svc.Append(ctx, AppendInput{InvoiceID: 1, Type: TypePaymentReceived, Amount: 0})
		require.Error(t, err)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := svc.Append(ctx, AppendInput{InvoiceID: 1, Type: EntryType("GIFT"), Amount: 5})
		require.Error(t, err)
	})

	t.Run("invoice required", func(t *testing.T) {
		_, err := svc.Append(ctx, AppendInput{Type: TypePaymentReceived, Amount: 5})
		require.Error(t, err)
	})

	t.Run("unknown invoice rejected", func(t *testing.T) {
		_, err := svc.Append(ctx, AppendInput{InvoiceID: 42, Type: TypePaymentReceived, Amount: 5})
		require.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestBalanceIsDerived(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addInvoice(7, 1000)
	repo.addInvoice(8, 1000)
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{InvoiceID: 7, Type: TypePaymentReceived, Amount: 300})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{InvoiceID: 7, Type: TypeLoanDisbursement, Amount: 200})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{InvoiceID: 7, Type: TypeRefund, Amount: -100})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{InvoiceID: 8, Type: TypePaymentReceived, Amount: 999})
	require.NoError(t, err)

	balance, err := svc.InvoiceBalance(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 400, balance, 0.001)

	// Payments net of refunds: 300 - 100; the loan never counts here.
	payments, err := svc.PaymentsNet(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 200, payments, 0.001)

	loan, err := svc.LoanDisbursed(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 200, loan, 0.001)

	entries, err := svc.ListByInvoice(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestAppendRecomputesPaidFlag(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addInvoice(5, 500)
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{InvoiceID: 5, Type: TypePaymentReceived, Amount: 500})
	require.NoError(t, err)
	require.True(t, repo.invoices[5].paid)

	// A refund drops the balance below total in the same transaction that
	// records it, so the cached flag never lags behind the ledger.
	_, err = svc.Append(ctx, AppendInput{InvoiceID: 5, Type: TypeRefund, Amount: -100})
	require.NoError(t, err)
	require.False(t, repo.invoices[5].paid)

	_, err = svc.Append(ctx, AppendInput{InvoiceID: 5, Type: TypePaymentReceived, Amount: 100})
	require.NoError(t, err)
	require.True(t, repo.invoices[5].paid)

	balance, err := svc.InvoiceBalance(ctx, 5)
	require.NoError(t, err)
	require.InDelta(t, 500, balance, 0.001)
}
