package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-logistics/meridian/internal/allocation"
	jobmetrics "github.com/meridian-logistics/meridian/internal/jobs"
	"github.com/meridian-logistics/meridian/internal/reconcile"
	"github.com/meridian-logistics/meridian/internal/reporting"
)

// TransitionLogJob records status transitions arriving from the HTTP side.
// Downstream notification channels hang off this handler.
type TransitionLogJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandlePaymentTransition processes TaskPaymentTransition tasks.
func (j *TransitionLogJob) HandlePaymentTransition(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("payment_transition")
	var event reconcile.TransitionEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	j.Logger.Info("payment transition",
		slog.Int64("pickup_id", event.PickupID),
		slog.Int64("invoice_id", event.InvoiceID),
		slog.String("from", string(event.From)),
		slog.String("to", string(event.To)))
	return tracker.End(nil)
}

// HandleLogisticsTransition processes TaskLogisticsTransition tasks.
func (j *TransitionLogJob) HandleLogisticsTransition(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("logistics_transition")
	var event allocation.TransitionEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	j.Logger.Info("logistics transition",
		slog.Int64("logistics_details_id", event.LogisticsDetailsID),
		slog.Int64("pickup_id", event.PickupID),
		slog.String("from", string(event.From)),
		slog.String("to", string(event.To)))
	return tracker.End(nil)
}

// ReportInvalidateJob bumps the reporting cache after ledger writes.
type ReportInvalidateJob struct {
	Reports *reporting.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskReportInvalidate tasks.
func (j *ReportInvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("report_invalidate")
	err := j.Reports.Invalidate(ctx)
	if err != nil {
		j.Logger.Warn("invalidate report cache", slog.Any("error", err))
	}
	return tracker.End(err)
}

// PaymentSweepJob retries unresolved payment records against invoices created
// after the payment arrived.
type PaymentSweepJob struct {
	Reconcile *reconcile.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

const defaultSweepLimit = 100

// Handle processes TaskPaymentSweep tasks.
func (j *PaymentSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("payment_sweep")
	var payload PaymentSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultSweepLimit
	}

	resolved, remaining, err := j.Reconcile.ResolvePending(ctx, payload.Limit)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.SetUnresolved(remaining)
	if resolved > 0 {
		j.Logger.Info("payment sweep resolved records",
			slog.Int("resolved", resolved), slog.Int("remaining", remaining))
	}
	return tracker.End(nil)
}
