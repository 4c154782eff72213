package jobs

import (
	"context"

	"github.com/meridian-logistics/meridian/internal/allocation"
	"github.com/meridian-logistics/meridian/internal/reconcile"
)

// EventPublisher satisfies the domain event ports by enqueueing asynq tasks.
// Publishing is best-effort by contract; a full queue surfaces as an error the
// caller logs and moves past.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher constructs an EventPublisher.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// PublishPaymentTransition enqueues a payment transition task together with a
// report cache invalidation.
func (p *EventPublisher) PublishPaymentTransition(ctx context.Context, event reconcile.TransitionEvent) error {
	task, err := NewPaymentTransitionTask(event)
	if err != nil {
		return err
	}
	if _, err := p.client.Enqueue(ctx, task); err != nil {
		return err
	}
	_, err = p.client.Enqueue(ctx, NewReportInvalidateTask())
	return err
}

// PublishLogisticsTransition enqueues a logistics transition task.
func (p *EventPublisher) PublishLogisticsTransition(ctx context.Context, event allocation.TransitionEvent) error {
	task, err := NewLogisticsTransitionTask(event)
	if err != nil {
		return err
	}
	if _, err := p.client.Enqueue(ctx, task); err != nil {
		return err
	}
	_, err = p.client.Enqueue(ctx, NewReportInvalidateTask())
	return err
}
