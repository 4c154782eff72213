// Package reconcile ingests external payment events and applies them to
// invoices and the transaction ledger exactly once.
package reconcile

import (
	"time"

	"github.com/meridian-logistics/meridian/internal/orders"
)

// EventStatus is the reported outcome of the external payment attempt.
type EventStatus string

const (
	EventSuccess EventStatus = "SUCCESS"
	EventFailed  EventStatus = "FAILED"
)

// PaymentEvent is the webhook-shaped inbound notification.
type PaymentEvent struct {
	TransactionNumber string      `json:"transactionNumber" validate:"required"`
	Status            EventStatus `json:"status" validate:"required,oneof=SUCCESS FAILED"`
	Amount            float64     `json:"amount" validate:"gte=0"`
	Description       string      `json:"description"`
	Timestamp         time.Time   `json:"timestamp"`
	From              string      `json:"from"`
	To                string      `json:"to"`
	Reference         string      `json:"reference"`
}

// Outcome classifies how an event was absorbed.
type Outcome string

const (
	// OutcomeApplied means the ledger was credited and invoice state advanced.
	OutcomeApplied Outcome = "APPLIED"
	// OutcomeFailedRecorded means a FAILED event was stored as an attempt
	// marker without touching invoice state.
	OutcomeFailedRecorded Outcome = "FAILED_RECORDED"
	// OutcomeUnresolved means the payment persisted but matched no invoice.
	OutcomeUnresolved Outcome = "UNRESOLVED"
)

// PaymentRecord is the durable, deduplicated form of an inbound event. Its
// unique transaction number is the idempotency boundary with the payment
// channel.
type PaymentRecord struct {
	ID                int64       `json:"id"`
	TransactionNumber string      `json:"transaction_number"`
	Status            EventStatus `json:"status"`
	Amount            float64     `json:"amount"`
	Timestamp         time.Time   `json:"timestamp"`
	Description       string      `json:"description"`
	FromParty         string      `json:"from_party"`
	ToParty           string      `json:"to_party"`
	Reference         string      `json:"reference"`
	InvoiceID         *int64      `json:"invoice_id,omitempty"`
	Outcome           Outcome     `json:"outcome"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ReconciliationResult reports the invoice state after absorbing an event.
type ReconciliationResult struct {
	TransactionNumber string               `json:"transaction_number"`
	Outcome           Outcome              `json:"outcome"`
	InvoiceID         int64                `json:"invoice_id,omitempty"`
	Balance           float64              `json:"balance"`
	Paid              bool                 `json:"paid"`
	PaymentStatus     orders.PaymentStatus `json:"payment_status,omitempty"`
	Replayed          bool                 `json:"replayed"`
}
