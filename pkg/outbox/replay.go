package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService republishes events that the dispatcher gave up on.
type ReplayService struct {
	repo      EventStore
	publisher Publisher
	logger    *zap.Logger
}

func NewReplayService(repo EventStore, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ReplayEvent publishes a single event immediately.
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	if err := publishEvent(ctx, s.publisher, event); err != nil {
		if _, markErr := s.repo.MarkAsFailed(ctx, eventID, 5); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return fmt.Errorf("failed to publish: %w", err)
	}

	if err := s.repo.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}
	return nil
}

// RequeueFailed resets up to limit failed events to pending so the dispatcher
// picks them up again. Returns the number reset.
func (s *ReplayService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	count := 0
	for _, event := range events {
		if err := s.repo.ResetEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Failed to requeue event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		count++
	}
	if count > 0 {
		s.logger.Info("Requeued failed outbox events", zap.Int("count", count))
	}
	return count, nil
}

// ReplayFailedEvents publishes every failed event directly.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		successCount++
	}
	return successCount, nil
}
