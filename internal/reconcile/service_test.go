package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-logistics/meridian/internal/ledger"
	"github.com/meridian-logistics/meridian/internal/orders"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// memoryReconcileRepo emulates the serializable transaction boundary with one
// big lock: transactions run one at a time and roll back on error.
type memoryReconcileRepo struct {
	mu       sync.Mutex
	invoices map[int64]*orders.Invoice
	pickups  map[int64]*orders.Pickup
	records  map[string]*PaymentRecord
	entries  []ledger.AppendInput
	nextID   int64
}

func newMemoryReconcileRepo() *memoryReconcileRepo {
	return &memoryReconcileRepo{
		invoices: make(map[int64]*orders.Invoice),
		pickups:  make(map[int64]*orders.Pickup),
		records:  make(map[string]*PaymentRecord),
	}
}

func (r *memoryReconcileRepo) addInvoice(total float64, reference string) (*orders.Invoice, *orders.Pickup) {
	r.nextID++
	inv := &orders.Invoice{ID: r.nextID, ReferenceNumber: reference, TotalAmount: total, CreatedAt: time.Now()}
	r.invoices[inv.ID] = inv
	r.nextID++
	p := &orders.Pickup{ID: r.nextID, InvoiceID: inv.ID, PaymentStatus: orders.PaymentAwaiting}
	r.pickups[p.ID] = p
	return inv, p
}

type memorySnapshot struct {
	invoices map[int64]orders.Invoice
	pickups  map[int64]orders.Pickup
	records  map[string]PaymentRecord
	entries  []ledger.AppendInput
}

func (r *memoryReconcileRepo) snapshot() memorySnapshot {
	s := memorySnapshot{
		invoices: make(map[int64]orders.Invoice),
		pickups:  make(map[int64]orders.Pickup),
		records:  make(map[string]PaymentRecord),
		entries:  append([]ledger.AppendInput(nil), r.entries...),
	}
	for k, v := range r.invoices {
		s.invoices[k] = *v
	}
	for k, v := range r.pickups {
		s.pickups[k] = *v
	}
	for k, v := range r.records {
		s.records[k] = *v
	}
	return s
}

func (r *memoryReconcileRepo) restore(s memorySnapshot) {
	r.invoices = make(map[int64]*orders.Invoice)
	r.pickups = make(map[int64]*orders.Pickup)
	r.records = make(map[string]*PaymentRecord)
	r.entries = s.entries
	for k := range s.invoices {
		v := s.invoices[k]
		r.invoices[k] = &v
	}
	for k := range s.pickups {
		v := s.pickups[k]
		r.pickups[k] = &v
	}
	for k := range s.records {
		v := s.records[k]
		r.records[k] = &v
	}
}

func (r *memoryReconcileRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.snapshot()
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryReconcileRepo) GetPaymentRecord(ctx context.Context, transactionNumber string) (*PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[transactionNumber]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", transactionNumber, shared.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryReconcileRepo) GetInvoiceSnapshot(ctx context.Context, invoiceID int64) (float64, float64, bool, orders.PaymentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return 0, 0, false, "", shared.ErrNotFound
	}
	var status orders.PaymentStatus
	for _, p := range r.pickups {
		if p.InvoiceID == invoiceID {
			status = p.PaymentStatus
		}
	}
	return inv.TotalAmount, r.sumLocked(invoiceID), inv.Paid, status, nil
}

func (r *memoryReconcileRepo) ListUnresolved(ctx context.Context, limit int) ([]PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PaymentRecord
	for _, rec := range r.records {
		if rec.Outcome == OutcomeUnresolved {
			out = append(out, *rec)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memoryReconcileRepo) sumLocked(invoiceID int64) float64 {
	var sum float64
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID {
			sum += e.Amount
		}
	}
	return sum
}

type memoryTx memoryReconcileRepo

func (t *memoryTx) InsertPaymentRecord(ctx context.Context, record PaymentRecord) (int64, error) {
	if _, exists := t.records[record.TransactionNumber]; exists {
		return 0, fmt.Errorf("payment %s: %w", record.TransactionNumber, shared.ErrDuplicatePayment)
	}
	t.nextID++
	record.ID = t.nextID
	record.CreatedAt = time.Now()
	t.records[record.TransactionNumber] = &record
	return record.ID, nil
}

func (t *memoryTx) ResolveInvoiceForUpdate(ctx context.Context, reference, description string) (*orders.Invoice, error) {
	for _, candidate := range []string{reference, description} {
		if candidate == "" {
			continue
		}
		for _, inv := range t.invoices {
			if inv.ReferenceNumber == candidate {
				cp := *inv
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("no invoice for %q: %w", reference, shared.ErrNotFound)
}

func (t *memoryTx) GetPickupForUpdate(ctx context.Context, invoiceID int64) (*orders.Pickup, error) {
	for _, p := range t.pickups {
		if p.InvoiceID == invoiceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("pickup for invoice %d: %w", invoiceID, shared.ErrNotFound)
}

func (t *memoryTx) AppendLedgerEntry(ctx context.Context, input ledger.AppendInput) error {
	t.entries = append(t.entries, input)
	return nil
}

func (t *memoryTx) SumLedger(ctx context.Context, invoiceID int64) (float64, error) {
	return (*memoryReconcileRepo)(t).sumLocked(invoiceID), nil
}

func (t *memoryTx) SetInvoicePaid(ctx context.Context, invoiceID int64, paid bool) error {
	t.invoices[invoiceID].Paid = paid
	return nil
}

func (t *memoryTx) UpdatePickupPaymentStatus(ctx context.Context, pickupID int64, status orders.PaymentStatus) error {
	t.pickups[pickupID].PaymentStatus = status
	return nil
}

func (t *memoryTx) MarkRecordResolution(ctx context.Context, recordID int64, invoiceID *int64, outcome Outcome) error {
	for _, rec := range t.records {
		if rec.ID == recordID {
			rec.InvoiceID = invoiceID
			rec.Outcome = outcome
			return nil
		}
	}
	return shared.ErrNotFound
}

type capturedEvents struct {
	mu     sync.Mutex
	events []TransitionEvent
}

func (c *capturedEvents) PublishPaymentTransition(ctx context.Context, event TransitionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func testService(repo *memoryReconcileRepo) (*Service, *capturedEvents) {
	events := &capturedEvents{}
	return NewService(repo, events, slog.Default()), events
}

func successEvent(txn, reference string, amount float64) PaymentEvent {
	return PaymentEvent{
		TransactionNumber: txn,
		Status:            EventSuccess,
		Amount:            amount,
		Reference:         reference,
		Timestamp:         time.Now(),
	}
}

func TestApplyPaymentEventPartialThenFull(t *testing.T) {
	repo := newMemoryReconcileRepo()
	inv, pickup := repo.addInvoice(500, "REF-1")
	svc, events := testService(repo)
	ctx := context.Background()

	result, err := svc.ApplyPaymentEvent(ctx, successEvent("TXN-1", "REF-1", 300))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
	require.InDelta(t, 300, result.Balance, 0.001)
	require.False(t, result.Paid)
	require.Equal(t, orders.PaymentPartiallyPaid, result.PaymentStatus)

	result, err = svc.ApplyPaymentEvent(ctx, successEvent("TXN-2", "REF-1", 200))
	require.NoError(t, err)
	require.InDelta(t, 500, result.Balance, 0.001)
	require.True(t, result.Paid)
	require.Equal(t, orders.PaymentPaid, result.PaymentStatus)

	require.True(t, repo.invoices[inv.ID].Paid)
	require.Equal(t, orders.PaymentPaid, repo.pickups[pickup.ID].PaymentStatus)
	require.Len(t, repo.entries, 2)

	require.Len(t, events.events, 2)
	require.Equal(t, orders.PaymentAwaiting, events.events[0].From)
	require.Equal(t, orders.PaymentPartiallyPaid, events.events[0].To)
	require.Equal(t, orders.PaymentPaid, events.events[1].To)
}

func TestApplyPaymentEventOverpaymentSettles(t *testing.T) {
	repo := newMemoryReconcileRepo()
	repo.addInvoice(100, "REF-1")
	svc, _ := testService(repo)

	result, err := svc.ApplyPaymentEvent(context.Background(), successEvent("TXN-1", "REF-1", 150))
	require.NoError(t, err)
	require.True(t, result.Paid)
	require.Equal(t, orders.PaymentPaid, result.PaymentStatus)
	require.InDelta(t, 150, result.Balance, 0.001)
}

func TestApplyPaymentEventReplay(t *testing.T) {
	repo := newMemoryReconcileRepo()
	repo.addInvoice(500, "REF-1")
	svc, events := testService(repo)
	ctx := context.Background()

	first, err := svc.ApplyPaymentEvent(ctx, successEvent("TXN-1", "REF-1", 300))
	require.NoError(t, err)
	require.False(t, first.Replayed)

	replayed, err := svc.ApplyPaymentEvent(ctx, successEvent("TXN-1", "REF-1", 300))
	require.NoError(t, err)
	require.True(t, replayed.Replayed)
	require.Equal(t, OutcomeApplied, replayed.Outcome)
	require.InDelta(t, first.Balance, replayed.Balance, 0.001)

	// No second ledger entry, no second event.
	require.Len(t, repo.entries, 1)
	require.Len(t, events.events, 1)
}

func TestApplyPaymentEventResolvesByDescription(t *testing.T) {
	repo := newMemoryReconcileRepo()
	repo.addInvoice(200, "REF-9")
	svc, _ := testService(repo)

	event := successEvent("TXN-1", "", 200)
	event.Description = "REF-9"
	result, err := svc.ApplyPaymentEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
}

func TestApplyPaymentEventUnresolvedPersists(t *testing.T) {
	repo := newMemoryReconcileRepo()
	svc, _ := testService(repo)
	ctx := context.Background()

	result, err := svc.ApplyPaymentEvent(ctx, successEvent("TXN-1", "NO-SUCH-REF", 300))
	require.ErrorIs(t, err, shared.ErrUnresolvedInvoice)
	require.NotNil(t, result)
	require.Equal(t, OutcomeUnresolved, result.Outcome)

	// The record survives the unmatched reference.
	rec, err := svc.GetPaymentRecord(ctx, "TXN-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeUnresolved, rec.Outcome)
	require.Nil(t, rec.InvoiceID)
	require.Empty(t, repo.entries)
}

func TestApplyPaymentEventFailedRecordsMarkerOnly(t *testing.T) {
	repo := newMemoryReconcileRepo()
	inv, pickup := repo.addInvoice(500, "REF-1")
	svc, _ := testService(repo)

	event := successEvent("TXN-1", "REF-1", 300)
	event.Status = EventFailed
	result, err := svc.ApplyPaymentEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailedRecorded, result.Outcome)
	require.Equal(t, inv.ID, result.InvoiceID)
	require.InDelta(t, 0, result.Balance, 0.001)

	// No money movement, no status change.
	require.Empty(t, repo.entries)
	require.Equal(t, orders.PaymentAwaiting, repo.pickups[pickup.ID].PaymentStatus)

	t.Run("zero amount failed attempt still records", func(t *testing.T) {
		zero := successEvent("TXN-2", "REF-1", 0)
		zero.Status = EventFailed
		result, err := svc.ApplyPaymentEvent(context.Background(), zero)
		require.NoError(t, err)
		require.Equal(t, OutcomeFailedRecorded, result.Outcome)
		require.Empty(t, repo.entries)
	})
}

func TestApplyPaymentEventOnCancelledPickupKeepsStatus(t *testing.T) {
	repo := newMemoryReconcileRepo()
	_, pickup := repo.addInvoice(500, "REF-1")
	repo.pickups[pickup.ID].PaymentStatus = orders.PaymentCancelled
	svc, _ := testService(repo)

	result, err := svc.ApplyPaymentEvent(context.Background(), successEvent("TXN-1", "REF-1", 500))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
	// Money is recorded in the ledger, the terminal payment axis stays put.
	require.Len(t, repo.entries, 1)
	require.Equal(t, orders.PaymentCancelled, repo.pickups[pickup.ID].PaymentStatus)
}

func TestApplyPaymentEventValidation(t *testing.T) {
	repo := newMemoryReconcileRepo()
	svc, _ := testService(repo)
	ctx := context.Background()

	_, err := svc.ApplyPaymentEvent(ctx, PaymentEvent{Status: EventSuccess, Amount: 10})
	require.Error(t, err)

	_, err = svc.ApplyPaymentEvent(ctx, PaymentEvent{TransactionNumber: "T", Status: EventSuccess, Amount: 0})
	require.Error(t, err)

	_, err = svc.ApplyPaymentEvent(ctx, PaymentEvent{TransactionNumber: "T", Status: EventFailed, Amount: -5})
	require.Error(t, err)
}

func TestConcurrentDuplicateEventsApplyOnce(t *testing.T) {
	repo := newMemoryReconcileRepo()
	repo.addInvoice(500, "REF-1")
	svc, _ := testService(repo)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*ReconciliationResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ApplyPaymentEvent(context.Background(), successEvent("TXN-1", "REF-1", 300))
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, OutcomeApplied, results[i].Outcome)
		require.InDelta(t, 300, results[i].Balance, 0.001)
		if !results[i].Replayed {
			applied++
		}
	}
	require.Equal(t, 1, applied)
	require.Len(t, repo.entries, 1)
}

func TestResolvePending(t *testing.T) {
	repo := newMemoryReconcileRepo()
	svc, events := testService(repo)
	ctx := context.Background()

	// Payment arrives before its invoice exists.
	_, err := svc.ApplyPaymentEvent(ctx, successEvent("TXN-1", "LATE-REF", 400))
	require.ErrorIs(t, err, shared.ErrUnresolvedInvoice)

	resolved, remaining, err := svc.ResolvePending(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, resolved)
	require.Equal(t, 1, remaining)

	inv, pickup := repo.addInvoice(400, "LATE-REF")

	resolved, remaining, err = svc.ResolvePending(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, resolved)
	require.Zero(t, remaining)

	rec, err := svc.GetPaymentRecord(ctx, "TXN-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, rec.Outcome)
	require.NotNil(t, rec.InvoiceID)
	require.Equal(t, inv.ID, *rec.InvoiceID)
	require.True(t, repo.invoices[inv.ID].Paid)
	require.Equal(t, orders.PaymentPaid, repo.pickups[pickup.ID].PaymentStatus)
	require.Len(t, events.events, 1)

	// A second sweep finds nothing.
	resolved, remaining, err = svc.ResolvePending(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, resolved)
	require.Zero(t, remaining)
}
