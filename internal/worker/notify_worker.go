package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/config"
)

const (
	NotifyPollTimeout = 1 * time.Second // Must be >= 1s to satisfy Redis
	webhookTimeout    = 10 * time.Second
	maxAttempts       = 5
)

// NotifyWorker drains the terminal-session queue and delivers each event to
// the configured webhook. Delivery failures are requeued with an attempt
// counter; events that keep failing are dropped after maxAttempts.
type NotifyWorker struct {
	rdb        *redis.Client
	client     *http.Client
	webhookURL string
	log        zerolog.Logger
}

// NewNotifyWorker creates a new NotifyWorker.
func NewNotifyWorker(rdb *redis.Client, webhookURL string, log zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{
		rdb:        rdb,
		client:     &http.Client{Timeout: webhookTimeout},
		webhookURL: webhookURL,
		log:        log.With().Str("component", "notify_worker").Logger(),
	}
}

// notifyEnvelope wraps the queued event payload with delivery bookkeeping.
type notifyEnvelope struct {
	Attempts int             `json:"attempts"`
	Event    json.RawMessage `json:"event"`
}

// Start runs the delivery loop until the context is cancelled.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.log.Info().Str("webhook_url", w.webhookURL).Msg("NotifyWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("NotifyWorker stopping")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, NotifyPollTimeout, config.WorkerKey.NotifyQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		w.deliver(ctx, []byte(result[1]))
	}
}

// deliver posts one event to the webhook, requeueing on failure. Raw events
// pushed by the publisher and requeued envelopes share the queue; both
// shapes are accepted.
func (w *NotifyWorker) deliver(ctx context.Context, raw []byte) {
	envelope := notifyEnvelope{Event: raw}
	var parsed notifyEnvelope
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Event != nil {
		envelope = parsed
	}

	if err := w.post(ctx, envelope.Event); err != nil {
		envelope.Attempts++
		if envelope.Attempts >= maxAttempts {
			w.log.Error().Err(err).Int("attempts", envelope.Attempts).
				RawJSON("event", envelope.Event).Msg("Dropping notification after repeated failures")
			return
		}

		w.log.Warn().Err(err).Int("attempts", envelope.Attempts).Msg("Webhook delivery failed, requeueing")
		data, _ := json.Marshal(envelope)
		if err := w.rdb.RPush(ctx, config.WorkerKey.NotifyQueue, data).Err(); err != nil {
			w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue notification. Event lost.")
		}
		// Avoid thrashing if the webhook endpoint is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *NotifyWorker) post(ctx context.Context, event json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(event))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &webhookStatusError{status: resp.StatusCode}
	}
	return nil
}

type webhookStatusError struct {
	status int
}

func (e *webhookStatusError) Error() string {
	return http.StatusText(e.status)
}
