package service

import (
	"time"

	"github.com/formforge/formforge-backend/internal/model"
)

// TimeGuard computes elapsed and remaining time for a session against its
// form's configured limit. It holds no state; the session service consults
// it before every state decision.
type TimeGuard struct{}

// Limit returns the configured time limit and whether one exists.
func (TimeGuard) Limit(settings *model.FormSettings) (time.Duration, bool) {
	if settings == nil || settings.TimeLimitMinutes == nil || *settings.TimeLimitMinutes <= 0 {
		return 0, false
	}
	return time.Duration(*settings.TimeLimitMinutes) * time.Minute, true
}

// Remaining returns the time left before the session must be force-closed.
// The second return is false when the form has no limit, in which case the
// session never expires.
func (g TimeGuard) Remaining(settings *model.FormSettings, startedAt, now time.Time) (time.Duration, bool) {
	limit, ok := g.Limit(settings)
	if !ok {
		return 0, false
	}
	remaining := limit - now.Sub(startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Expired reports whether the session's time limit has elapsed.
func (g TimeGuard) Expired(settings *model.FormSettings, startedAt, now time.Time) bool {
	limit, ok := g.Limit(settings)
	if !ok {
		return false
	}
	return now.Sub(startedAt) >= limit
}

// TimeSpentSeconds computes the time to record at finalization. An attempt
// is never credited with more time than its limit, even when finalized
// late.
func (g TimeGuard) TimeSpentSeconds(settings *model.FormSettings, startedAt, finishedAt time.Time) int {
	elapsed := finishedAt.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if limit, ok := g.Limit(settings); ok && elapsed > limit {
		elapsed = limit
	}
	return int(elapsed / time.Second)
}
