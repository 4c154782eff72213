// Package orders owns pickups, invoices, logistics details and the two status
// state machines (payment axis and physical axis) that govern them.
package orders

import (
	"fmt"
	"time"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// PaymentStatus is the payment-axis state of a pickup.
type PaymentStatus string

const (
	PaymentAwaiting      PaymentStatus = "AWAITING_PAYMENT"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
	PaymentCancelled     PaymentStatus = "CANCELLED"
)

var paymentRank = map[PaymentStatus]int{
	PaymentAwaiting:      0,
	PaymentPartiallyPaid: 1,
	PaymentPaid:          2,
}

// IsValid checks if the status is valid.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentAwaiting, PaymentPartiallyPaid, PaymentPaid, PaymentCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further payment transitions are allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentCancelled
}

// Transition validates a payment-axis move. Re-applying the current status is a
// no-op. Forward skips are allowed (a single payment can settle in full);
// regression is not. Cancellation is only reachable before the invoice is paid.
func (s PaymentStatus) Transition(next PaymentStatus) (PaymentStatus, error) {
	if !next.IsValid() {
		return s, fmt.Errorf("orders: payment status %q: %w", next, shared.ErrInvalidTransition)
	}
	if next == s {
		return s, nil
	}
	if next == PaymentCancelled {
		if s == PaymentPaid || s == PaymentCancelled {
			return s, fmt.Errorf("orders: cancel from %s: %w", s, shared.ErrInvalidTransition)
		}
		return next, nil
	}
	if s == PaymentCancelled {
		return s, fmt.Errorf("orders: %s is terminal: %w", s, shared.ErrInvalidTransition)
	}
	if paymentRank[next] < paymentRank[s] {
		return s, fmt.Errorf("orders: payment %s -> %s: %w", s, next, shared.ErrInvalidTransition)
	}
	return next, nil
}

// LogisticsStatus is the physical-axis state of a pickup's logistics details.
type LogisticsStatus string

const (
	LogisticsPendingPlanning    LogisticsStatus = "PENDING_PLANNING"
	LogisticsReadyForCollection LogisticsStatus = "READY_FOR_COLLECTION"
	LogisticsOutForDelivery     LogisticsStatus = "OUT_FOR_DELIVERY"
	LogisticsDelivered          LogisticsStatus = "DELIVERED"
	LogisticsCancelled          LogisticsStatus = "CANCELLED"
)

var logisticsRank = map[LogisticsStatus]int{
	LogisticsPendingPlanning:    0,
	LogisticsReadyForCollection: 1,
	LogisticsOutForDelivery:     2,
	LogisticsDelivered:          3,
}

// IsValid checks if the status is valid.
func (s LogisticsStatus) IsValid() bool {
	switch s {
	case LogisticsPendingPlanning, LogisticsReadyForCollection, LogisticsOutForDelivery,
		LogisticsDelivered, LogisticsCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the physical axis has closed.
func (s LogisticsStatus) IsTerminal() bool {
	return s == LogisticsDelivered || s == LogisticsCancelled
}

// Transition validates a physical-axis move. The sequence is strictly ordered
// and monotone: only the immediate next state is reachable, re-applying the
// current state is a no-op, and cancellation is reachable from any non-terminal
// state.
func (s LogisticsStatus) Transition(next LogisticsStatus) (LogisticsStatus, error) {
	if !next.IsValid() {
		return s, fmt.Errorf("orders: logistics status %q: %w", next, shared.ErrInvalidTransition)
	}
	if next == s {
		return s, nil
	}
	if next == LogisticsCancelled {
		if s.IsTerminal() {
			return s, fmt.Errorf("orders: cancel from %s: %w", s, shared.ErrInvalidTransition)
		}
		return next, nil
	}
	if s.IsTerminal() {
		return s, fmt.Errorf("orders: %s is terminal: %w", s, shared.ErrInvalidTransition)
	}
	if logisticsRank[next] != logisticsRank[s]+1 {
		return s, fmt.Errorf("orders: logistics %s -> %s: %w", s, next, shared.ErrInvalidTransition)
	}
	return next, nil
}

// PaymentGate decides whether the physical axis may move into fulfilment.
// The default rule requires the invoice to be fully paid. Companies with a
// loan-financed arrangement unlock on partial payment when loan disbursements
// recorded in the ledger cover the outstanding gap. PaymentsNet sums payment
// credits net of refunds and excludes loan entries, so each disbursement
// counts toward the gap exactly once.
type PaymentGate struct {
	Status        PaymentStatus
	TotalAmount   float64
	PaymentsNet   float64
	LoanDisbursed float64
	AllowPartial  bool
}

// Unlocked reports whether fulfilment beyond planning may proceed.
func (g PaymentGate) Unlocked() bool {
	switch g.Status {
	case PaymentPaid:
		return true
	case PaymentPartiallyPaid:
		return g.AllowPartial && shared.MoneyGTE(g.PaymentsNet+g.LoanDisbursed, g.TotalAmount)
	default:
		return false
	}
}

// Company places orders and may carry a bank-account arrangement that permits
// fulfilment on partial payment.
type Company struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	BankAccountRef     *string   `json:"bank_account_ref,omitempty"`
	AllowPartialUnlock bool      `json:"allow_partial_unlock"`
	CreatedAt          time.Time `json:"created_at"`
}

// Invoice bills exactly one pickup. The paid flag is a cache of the ledger
// aggregate and is only ever written inside the same transaction as a ledger
// append.
type Invoice struct {
	ID              int64     `json:"id"`
	ReferenceNumber string    `json:"reference_number"`
	TotalAmount     float64   `json:"total_amount"`
	Paid            bool      `json:"paid"`
	CreatedAt       time.Time `json:"created_at"`
}

// Pickup is a customer logistics order.
type Pickup struct {
	ID               int64         `json:"id"`
	CompanyID        int64         `json:"company_id"`
	InvoiceID        int64         `json:"invoice_id"`
	UnitPrice        float64       `json:"unit_price"`
	PhoneUnits       int           `json:"phone_units"`
	OrderDate        time.Time     `json:"order_date"`
	Recipient        string        `json:"recipient"`
	PickupLocation   *string       `json:"pickup_location,omitempty"`
	DeliveryLocation *string       `json:"delivery_location,omitempty"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// LogisticsDetails is the one-to-one fulfilment record for a pickup. The
// simulated timestamp pair is a replay/testing channel and never feeds the
// payment gate or scheduling decisions.
type LogisticsDetails struct {
	ID                   int64           `json:"id"`
	PickupID             int64           `json:"pickup_id"`
	ServiceType          string          `json:"service_type"`
	Quantity             int             `json:"quantity"`
	ScheduledPickupAt    time.Time       `json:"scheduled_pickup_at"`
	ScheduledDeliveryAt  time.Time       `json:"scheduled_delivery_at"`
	SimulatedPickupAt    *time.Time      `json:"simulated_pickup_at,omitempty"`
	SimulatedDeliveryAt  *time.Time      `json:"simulated_delivery_at,omitempty"`
	Status               LogisticsStatus `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// PickupWithInvoice joins a pickup with its invoice for read paths.
type PickupWithInvoice struct {
	Pickup
	Invoice Invoice `json:"invoice"`
}

// CreateOrderInput creates a pickup with its invoice and logistics details.
type CreateOrderInput struct {
	CompanyID           int64      `json:"company_id" validate:"required"`
	UnitPrice           float64    `json:"unit_price" validate:"required,gt=0"`
	PhoneUnits          int        `json:"phone_units" validate:"required,gt=0"`
	Recipient           string     `json:"recipient" validate:"required"`
	PickupLocation      *string    `json:"pickup_location,omitempty"`
	DeliveryLocation    *string    `json:"delivery_location,omitempty"`
	ServiceType         string     `json:"service_type" validate:"required"`
	ScheduledPickupAt   time.Time  `json:"scheduled_pickup_at" validate:"required"`
	ScheduledDeliveryAt time.Time  `json:"scheduled_delivery_at" validate:"required"`
	SimulatedPickupAt   *time.Time `json:"simulated_pickup_at,omitempty"`
	SimulatedDeliveryAt *time.Time `json:"simulated_delivery_at,omitempty"`
	OrderDate           time.Time  `json:"order_date"`
}

// CompanyInput creates a company.
type CompanyInput struct {
	Name               string  `json:"name" validate:"required"`
	BankAccountRef     *string `json:"bank_account_ref,omitempty"`
	AllowPartialUnlock bool    `json:"allow_partial_unlock"`
}
