package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SweepBatchSize caps how many overdue sessions one sweep pass inspects.
const SweepBatchSize = 500

// ExpirySweeper realizes expiry for overdue sessions.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// SweepWorker periodically expires overdue in_progress sessions so their
// results land without waiting for the respondent's next poll. Expiry is
// also realized lazily on every poll, violation report, and submit; the
// sweep just bounds how stale an abandoned session can get.
type SweepWorker struct {
	sweeper  ExpirySweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(sweeper ExpirySweeper, interval time.Duration, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("SweepWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SweepWorker stopping")
			return
		case <-ticker.C:
			inspected, err := w.sweeper.SweepExpired(ctx, SweepBatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Msg("Sweep pass failed")
				continue
			}
			if inspected > 0 {
				w.log.Info().Int("inspected", inspected).Msg("Expired overdue sessions")
			}
		}
	}
}
