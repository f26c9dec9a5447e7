package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/config"
	"github.com/formforge/formforge-backend/internal/model"
)

// Session event types carried on the monitor channel.
const (
	EventSessionStarted    = "session_started"
	EventViolationReported = "violation_reported"
	EventSessionSubmitted  = "session_submitted"
	EventSessionExpired    = "session_expired"
)

// SessionEvent is the payload fanned out to form monitors and, for
// terminal events, to the notification queue.
type SessionEvent struct {
	Type            string    `json:"type"`
	FormID          uuid.UUID `json:"form_id"`
	SessionID       uuid.UUID `json:"session_id"`
	RespondentName  *string   `json:"respondent_name,omitempty"`
	Status          string    `json:"status,omitempty"`
	ViolationsCount int       `json:"violations_count,omitempty"`
	Score           *float64  `json:"score,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EventPublisher delivers session lifecycle events. Delivery is best
// effort: session state changes must never fail because an event could not
// be published.
type EventPublisher interface {
	Publish(ctx context.Context, event SessionEvent)
}

// RedisEventPublisher fans events out over Redis: every event is published
// on the form's monitor pub/sub channel, and terminal events are
// additionally pushed onto the notification queue for the notify worker.
type RedisEventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish delivers the event. Errors are logged and swallowed.
func (p *RedisEventPublisher) Publish(ctx context.Context, event SessionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("type", event.Type).Msg("failed to marshal session event")
		return
	}

	channel := config.CacheKey.FormMonitorChannel(event.FormID.String())
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish monitor event")
	}

	if event.Type == EventSessionSubmitted || event.Type == EventSessionExpired {
		if err := p.rdb.LPush(ctx, config.WorkerKey.NotifyQueue, payload).Err(); err != nil {
			p.log.Warn().Err(err).Str("session_id", event.SessionID.String()).Msg("failed to enqueue notification")
		}
	}
}

// terminalEvent builds the event published when a session reaches a
// terminal status.
func terminalEvent(session *model.FormSession, occurredAt time.Time) SessionEvent {
	eventType := EventSessionSubmitted
	if session.Status == model.SessionStatusExpired {
		eventType = EventSessionExpired
	}
	return SessionEvent{
		Type:            eventType,
		FormID:          session.FormID,
		SessionID:       session.ID,
		RespondentName:  session.RespondentName,
		Status:          string(session.Status),
		ViolationsCount: session.ViolationsCount,
		Score:           session.Score,
		OccurredAt:      occurredAt,
	}
}
