// Package notify turns order events into e-mail tasks and delivers them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/foodsafe/storefront/internal/events"
)

// Task types processed by the worker.
const (
	TypeOrderConfirmation = "email:order_confirmation"
	TypeSalesNotification = "email:sales_notification"
	TypePaymentReceived   = "email:payment_received"
	TypeOrderCancelled    = "email:order_cancelled"
)

// DefaultQueue is the asynq queue carrying e-mail tasks.
const DefaultQueue = "emails"

// TaskPayload identifies the order an e-mail task is about.
type TaskPayload struct {
	OrderID string `json:"orderId"`
	EventID string `json:"eventId"`
}

// Enqueuer is the subset of *asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskTypesFor returns the e-mail tasks triggered by topic.
func TaskTypesFor(topic string) []string {
	switch topic {
	case events.TopicOrderCreated:
		return []string{TypeOrderConfirmation, TypeSalesNotification}
	case events.TopicOrderPaid:
		return []string{TypePaymentReceived}
	case events.TopicOrderCancelled:
		return []string{TypeOrderCancelled}
	default:
		return nil
	}
}

// TaskNotifier is an events.Notifier that enqueues e-mail tasks instead of
// sending inline, so a slow mail provider never blocks checkout.
type TaskNotifier struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// Notify implements events.Notifier. Task ids derive from the event id so a
// re-emitted event does not produce duplicate mail.
func (n TaskNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Client == nil {
		return nil
	}
	types := TaskTypesFor(ev.Topic)
	if len(types) == 0 {
		return nil
	}
	payload, err := json.Marshal(TaskPayload{OrderID: ev.AggregateID, EventID: ev.ID.String()})
	if err != nil {
		return err
	}
	queue := n.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	maxRetry := n.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 8
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var joined error
	for _, typ := range types {
		task := asynq.NewTask(typ, payload)
		_, err := n.Client.EnqueueContext(ctx, task,
			asynq.Queue(queue),
			asynq.MaxRetry(maxRetry),
			asynq.Timeout(timeout),
			asynq.TaskID(ev.ID.String()+":"+typ),
		)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			joined = errors.Join(joined, fmt.Errorf("enqueue %s: %w", typ, err))
		}
	}
	return joined
}
