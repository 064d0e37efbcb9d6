package idempotency

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BeginEvent records a webhook event id before it is processed. It reports
// false when the event was seen before. Redis answers fast for hot
// redeliveries; Postgres decides.
func (s *Store) BeginEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if s.redis != nil {
		fresh, err := s.redis.SetNX(ctx, eventKey(eventID), eventType, s.eventTTL).Result()
		if err != nil {
			zap.L().Warn("redis event dedup failed", zap.Error(err), zap.String("event_id", eventID))
		} else if !fresh {
			return false, nil
		}
	}

	first, err := s.db.ReserveWebhookEvent(ctx, eventID, eventType)
	if err != nil {
		s.forgetCached(ctx, eventID)
		return false, fmt.Errorf("begin webhook event: %w", err)
	}
	return first, nil
}

// ForgetEvent removes an event id so that a redelivery is processed again.
func (s *Store) ForgetEvent(ctx context.Context, eventID string) error {
	s.forgetCached(ctx, eventID)
	return s.db.ForgetWebhookEvent(ctx, eventID)
}

func (s *Store) forgetCached(ctx context.Context, eventID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, eventKey(eventID)).Err(); err != nil {
		zap.L().Warn("redis event forget failed", zap.Error(err), zap.String("event_id", eventID))
	}
}

func eventKey(eventID string) string {
	return eventPrefix + ":" + eventID
}
