package currency

import (
	"context"

	"github.com/hibiken/asynq"
)

// TypeRefresh is the scheduled task that pulls fresh exchange rates.
const TypeRefresh = "fx:refresh"

// TaskQueue carries the low-volume maintenance tasks.
const TaskQueue = "maintenance"

// NewRefreshTask builds the scheduled refresh task.
func NewRefreshTask() *asynq.Task {
	return asynq.NewTask(TypeRefresh, nil)
}

// ProcessTask implements asynq.Handler. A failed refresh keeps the previous
// snapshot and is retried by the queue.
func (r *Refresher) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := r.Refresh(ctx)
	return err
}
