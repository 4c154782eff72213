// Package shared holds cross-cutting helpers used by every domain package.
package shared

import "errors"

var (
	// ErrNotFound indicates a referenced truck, invoice or pickup does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePayment indicates a payment event was already processed; callers
	// treat it as an idempotent replay, not a failure.
	ErrDuplicatePayment = errors.New("payment already processed")
	// ErrUnresolvedInvoice indicates a payment could not be matched to an invoice.
	// The payment record is persisted regardless; money has moved externally.
	ErrUnresolvedInvoice = errors.New("payment does not resolve to an invoice")
	// ErrInvalidTransition indicates an attempted status regression or skip.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientCapacity indicates no truck combination can cover the request.
	ErrInsufficientCapacity = errors.New("insufficient truck capacity")
	// ErrConcurrencyConflict indicates a transaction lost an isolation-level race
	// after the internal retry was exhausted.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)

// IsRetryableConflict reports whether err is an isolation conflict that the
// owning component may retry transparently once.
func IsRetryableConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
