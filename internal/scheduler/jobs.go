package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// Reaper closes idle sessions.
type Reaper interface {
	ReapIdle() int
}

// Requeuer puts failed outbox events back in line for delivery.
type Requeuer interface {
	RequeueFailed(ctx context.Context, limit int) (int, error)
}

const requeueBatch = 100

func SessionReaperJob(r Reaper) Job {
	return func(context.Context) {
		r.ReapIdle()
	}
}

func OutboxRequeueJob(r Requeuer, logger *zap.Logger) Job {
	return func(ctx context.Context) {
		if _, err := r.RequeueFailed(ctx, requeueBatch); err != nil {
			logger.Error("Failed to requeue outbox events", zap.Error(err))
		}
	}
}
