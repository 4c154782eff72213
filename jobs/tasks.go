// Package jobs defines the asynq task surface: queue names, payload shapes and
// the worker that processes them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meridian-logistics/meridian/internal/allocation"
	"github.com/meridian-logistics/meridian/internal/reconcile"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskPaymentTransition fans out a payment-axis status change.
	TaskPaymentTransition = "payment:transition"
	// TaskLogisticsTransition fans out a physical-axis status change.
	TaskLogisticsTransition = "logistics:transition"
	// TaskReportInvalidate bumps the reporting cache version.
	TaskReportInvalidate = "reports:invalidate"
	// TaskPaymentSweep retries unresolved payment records.
	TaskPaymentSweep = "payments:sweep"
)

// PaymentSweepPayload bounds one sweep pass.
type PaymentSweepPayload struct {
	Limit int `json:"limit"`
}

// NewPaymentTransitionTask wraps a payment transition event as a task.
func NewPaymentTransitionTask(event reconcile.TransitionEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentTransition, data), nil
}

// NewLogisticsTransitionTask wraps a logistics transition event as a task.
func NewLogisticsTransitionTask(event allocation.TransitionEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLogisticsTransition, data), nil
}

// NewReportInvalidateTask constructs a cache invalidation task.
func NewReportInvalidateTask() *asynq.Task {
	return asynq.NewTask(TaskReportInvalidate, nil)
}

// NewPaymentSweepTask constructs an unresolved-payment sweep task.
func NewPaymentSweepTask(payload PaymentSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentSweep, data), nil
}
