package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/formforge/formforge-backend/internal/model"
)

// ViolationStore is the persistence contract for the append-only anti-cheat
// log. Append must insert the entry and increment the session's cached
// counter atomically, returning the post-increment count.
type ViolationStore interface {
	Append(ctx context.Context, sessionID uuid.UUID, eventType string) (int, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Violation, error)
}

// ViolationTracker records anti-cheat events and decides whether the
// cumulative count breaches the form's threshold. Every event type counts
// toward the same total; the threshold applies to violations of any
// tracked kind, not per-kind.
type ViolationTracker struct {
	store ViolationStore
}

// NewViolationTracker creates a new ViolationTracker.
func NewViolationTracker(store ViolationStore) *ViolationTracker {
	return &ViolationTracker{store: store}
}

// Record appends one event and returns the post-increment count plus
// whether the threshold was breached. A threshold of zero (or unset)
// disables forced termination: events still accumulate, but never breach.
func (t *ViolationTracker) Record(ctx context.Context, sessionID uuid.UUID, eventType string, maxViolations int) (int, bool, error) {
	count, err := t.store.Append(ctx, sessionID, eventType)
	if err != nil {
		return 0, false, err
	}
	breached := maxViolations > 0 && count >= maxViolations
	return count, breached, nil
}
