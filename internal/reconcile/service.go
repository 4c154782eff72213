package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-logistics/meridian/internal/ledger"
	"github.com/meridian-logistics/meridian/internal/observability"
	"github.com/meridian-logistics/meridian/internal/orders"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// RepositoryPort defines data access methods for reconciliation.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPaymentRecord(ctx context.Context, transactionNumber string) (*PaymentRecord, error)
	GetInvoiceSnapshot(ctx context.Context, invoiceID int64) (total float64, balance float64, paid bool, status orders.PaymentStatus, err error)
	ListUnresolved(ctx context.Context, limit int) ([]PaymentRecord, error)
}

// TxRepository exposes the row operations of one reconciliation transaction.
// Everything it touches for a single invoice commits or rolls back together.
type TxRepository interface {
	InsertPaymentRecord(ctx context.Context, record PaymentRecord) (int64, error)
	ResolveInvoiceForUpdate(ctx context.Context, reference, description string) (*orders.Invoice, error)
	GetPickupForUpdate(ctx context.Context, invoiceID int64) (*orders.Pickup, error)
	AppendLedgerEntry(ctx context.Context, input ledger.AppendInput) error
	SumLedger(ctx context.Context, invoiceID int64) (float64, error)
	SetInvoicePaid(ctx context.Context, invoiceID int64, paid bool) error
	UpdatePickupPaymentStatus(ctx context.Context, pickupID int64, status orders.PaymentStatus) error
	MarkRecordResolution(ctx context.Context, recordID int64, invoiceID *int64, outcome Outcome) error
}

// TransitionEvent notifies downstream consumers of a payment-axis move.
type TransitionEvent struct {
	PickupID  int64                `json:"pickup_id"`
	InvoiceID int64                `json:"invoice_id"`
	From      orders.PaymentStatus `json:"from"`
	To        orders.PaymentStatus `json:"to"`
}

// EventsPort publishes transition events. Delivery is best-effort; the ledger
// write is the durable source of truth.
type EventsPort interface {
	PublishPaymentTransition(ctx context.Context, event TransitionEvent) error
}

// Service is the payment reconciliation engine.
type Service struct {
	repo    RepositoryPort
	events  EventsPort
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, events EventsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

// WithMetrics attaches the Prometheus collectors. A nil receiver on the
// collectors is a no-op, so the worker can run without them.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// ApplyPaymentEvent absorbs one external payment event idempotently. Replays
// of an already-processed transaction number return the stored outcome with
// the invoice's current state and perform no side effects.
func (s *Service) ApplyPaymentEvent(ctx context.Context, event PaymentEvent) (*ReconciliationResult, error) {
	if event.TransactionNumber == "" {
		return nil, errors.New("reconcile: transaction number required")
	}
	if event.Amount < 0 {
		return nil, errors.New("reconcile: amount must not be negative")
	}
	// Failed attempts legitimately report a zero amount; they are stored as
	// markers and never credit the ledger.
	if event.Amount == 0 && event.Status != EventFailed {
		return nil, errors.New("reconcile: amount must be positive")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if existing, err := s.repo.GetPaymentRecord(ctx, event.TransactionNumber); err == nil && existing != nil {
		return s.replay(ctx, existing)
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	result, err := s.applyOnce(ctx, event)
	if err == nil {
		return result, nil
	}

	// First write wins under the uniqueness constraint; a concurrent duplicate
	// is folded into the replay path.
	if errors.Is(err, shared.ErrDuplicatePayment) {
		existing, lookupErr := s.repo.GetPaymentRecord(ctx, event.TransactionNumber)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return s.replay(ctx, existing)
	}

	if result != nil && errors.Is(err, shared.ErrUnresolvedInvoice) {
		return result, err
	}
	return nil, err
}

func (s *Service) applyOnce(ctx context.Context, event PaymentEvent) (*ReconciliationResult, error) {
	var (
		result     ReconciliationResult
		transition *TransitionEvent
	)

	run := func() error {
		transition = nil
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			record := PaymentRecord{
				TransactionNumber: event.TransactionNumber,
				Status:            event.Status,
				Amount:            event.Amount,
				Timestamp:         event.Timestamp,
				Description:       event.Description,
				FromParty:         event.From,
				ToParty:           event.To,
				Reference:         event.Reference,
				Outcome:           OutcomeUnresolved,
			}
			recordID, err := tx.InsertPaymentRecord(ctx, record)
			if err != nil {
				return err
			}
			record.ID = recordID

			invoice, err := tx.ResolveInvoiceForUpdate(ctx, event.Reference, event.Description)
			if errors.Is(err, shared.ErrNotFound) {
				// Money moved externally; the record stays, the mismatch is
				// surfaced for manual intervention.
				result = ReconciliationResult{
					TransactionNumber: event.TransactionNumber,
					Outcome:           OutcomeUnresolved,
				}
				return nil
			}
			if err != nil {
				return err
			}

			res, trans, err := s.settle(ctx, tx, record, invoice)
			if err != nil {
				return err
			}
			result = *res
			transition = trans
			return nil
		})
	}

	err := run()
	if err != nil && shared.IsRetryableConflict(err) {
		// One transparent retry on isolation conflict before surfacing.
		s.metrics.ObserveConflictRetry()
		err = run()
		if err != nil && shared.IsRetryableConflict(err) {
			err = fmt.Errorf("reconcile: transaction %s: %w", event.TransactionNumber, shared.ErrConcurrencyConflict)
		}
	}
	if err != nil {
		return nil, err
	}

	if transition != nil && s.events != nil {
		if perr := s.events.PublishPaymentTransition(ctx, *transition); perr != nil {
			s.logger.Warn("publish payment transition", slog.Any("error", perr))
		}
	}

	s.metrics.ObservePayment(string(result.Outcome))
	if result.Outcome == OutcomeUnresolved {
		return &result, fmt.Errorf("reconcile: transaction %s: %w", event.TransactionNumber, shared.ErrUnresolvedInvoice)
	}
	return &result, nil
}

// settle applies a matched payment record to its invoice inside the caller's
// transaction. FAILED events record the failure against the invoice without a
// ledger write; SUCCESS events append the credit and advance the payment axis.
func (s *Service) settle(ctx context.Context, tx TxRepository, record PaymentRecord, invoice *orders.Invoice) (*ReconciliationResult, *TransitionEvent, error) {
	if record.Status == EventFailed {
		if err := tx.MarkRecordResolution(ctx, record.ID, &invoice.ID, OutcomeFailedRecorded); err != nil {
			return nil, nil, err
		}
		balance, err := tx.SumLedger(ctx, invoice.ID)
		if err != nil {
			return nil, nil, err
		}
		pickup, err := tx.GetPickupForUpdate(ctx, invoice.ID)
		if err != nil {
			return nil, nil, err
		}
		return &ReconciliationResult{
			TransactionNumber: record.TransactionNumber,
			Outcome:           OutcomeFailedRecorded,
			InvoiceID:         invoice.ID,
			Balance:           balance,
			Paid:              invoice.Paid,
			PaymentStatus:     pickup.PaymentStatus,
		}, nil, nil
	}

	pickup, err := tx.GetPickupForUpdate(ctx, invoice.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.AppendLedgerEntry(ctx, ledger.AppendInput{
		InvoiceID:       invoice.ID,
		Type:            ledger.TypePaymentReceived,
		Amount:          record.Amount,
		TransactionDate: record.Timestamp,
		Note:            fmt.Sprintf("payment %s", record.TransactionNumber),
	}); err != nil {
		return nil, nil, err
	}

	balance, err := tx.SumLedger(ctx, invoice.ID)
	if err != nil {
		return nil, nil, err
	}

	paid := shared.MoneyGTE(balance, invoice.TotalAmount)
	next := orders.PaymentPartiallyPaid
	if paid {
		next = orders.PaymentPaid
	}

	status := pickup.PaymentStatus
	if target, terr := pickup.PaymentStatus.Transition(next); terr == nil {
		status = target
	} else {
		// Ledger still records the received money; a terminal payment axis
		// (cancelled order) keeps its status.
		s.logger.Warn("payment received on terminal status",
			slog.Int64("pickup_id", pickup.ID),
			slog.String("status", string(pickup.PaymentStatus)))
	}

	if paid != invoice.Paid {
		if err := tx.SetInvoicePaid(ctx, invoice.ID, paid); err != nil {
			return nil, nil, err
		}
	}

	var transition *TransitionEvent
	if status != pickup.PaymentStatus {
		if err := tx.UpdatePickupPaymentStatus(ctx, pickup.ID, status); err != nil {
			return nil, nil, err
		}
		transition = &TransitionEvent{
			PickupID:  pickup.ID,
			InvoiceID: invoice.ID,
			From:      pickup.PaymentStatus,
			To:        status,
		}
	}
	if err := tx.MarkRecordResolution(ctx, record.ID, &invoice.ID, OutcomeApplied); err != nil {
		return nil, nil, err
	}

	return &ReconciliationResult{
		TransactionNumber: record.TransactionNumber,
		Outcome:           OutcomeApplied,
		InvoiceID:         invoice.ID,
		Balance:           balance,
		Paid:              paid,
		PaymentStatus:     status,
	}, transition, nil
}

// ResolvePending retries stored unresolved records against invoices that may
// have been created since the payment arrived. It reports how many records
// were settled this pass and how many remain unresolved.
func (s *Service) ResolvePending(ctx context.Context, limit int) (resolved, remaining int, err error) {
	records, err := s.repo.ListUnresolved(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, record := range records {
		settled, err := s.resolveRecord(ctx, record)
		if err != nil {
			s.logger.Warn("resolve pending payment",
				slog.String("transaction_number", record.TransactionNumber),
				slog.Any("error", err))
			continue
		}
		if settled {
			resolved++
		}
	}
	return resolved, len(records) - resolved, nil
}

func (s *Service) resolveRecord(ctx context.Context, record PaymentRecord) (bool, error) {
	var (
		settled    bool
		transition *TransitionEvent
	)
	var outcome Outcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.ResolveInvoiceForUpdate(ctx, record.Reference, record.Description)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		res, trans, err := s.settle(ctx, tx, record, invoice)
		if err != nil {
			return err
		}
		settled = true
		outcome = res.Outcome
		transition = trans
		return nil
	})
	if err != nil {
		return false, err
	}
	if settled {
		s.metrics.ObservePayment(string(outcome))
	}
	if settled && transition != nil && s.events != nil {
		if perr := s.events.PublishPaymentTransition(ctx, *transition); perr != nil {
			s.logger.Warn("publish payment transition", slog.Any("error", perr))
		}
	}
	return settled, nil
}

// replay rebuilds the previously computed result from the stored record and
// the invoice's current state, without re-applying side effects.
func (s *Service) replay(ctx context.Context, record *PaymentRecord) (*ReconciliationResult, error) {
	result := ReconciliationResult{
		TransactionNumber: record.TransactionNumber,
		Outcome:           record.Outcome,
		Replayed:          true,
	}
	if record.InvoiceID != nil {
		_, balance, paid, status, err := s.repo.GetInvoiceSnapshot(ctx, *record.InvoiceID)
		if err != nil {
			return nil, err
		}
		result.InvoiceID = *record.InvoiceID
		result.Balance = balance
		result.Paid = paid
		result.PaymentStatus = status
	}
	if record.Outcome == OutcomeUnresolved {
		return &result, fmt.Errorf("reconcile: transaction %s: %w", record.TransactionNumber, shared.ErrUnresolvedInvoice)
	}
	return &result, nil
}

// GetPaymentRecord returns the stored record for a transaction number.
func (s *Service) GetPaymentRecord(ctx context.Context, transactionNumber string) (*PaymentRecord, error) {
	return s.repo.GetPaymentRecord(ctx, transactionNumber)
}
