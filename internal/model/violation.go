package model

import (
	"time"

	"github.com/google/uuid"
)

// Violation is one client-reported anti-cheat event. The log is append-only:
// entries are never mutated or deleted, and the session's violations_count
// column is a cached count kept consistent with it.
type Violation struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Well-known violation event types. The server also accepts and counts
// event types outside this list.
const (
	ViolationTabSwitch      = "tab_switch"
	ViolationCopyPaste      = "copy_paste"
	ViolationFullscreenExit = "fullscreen_exit"
)

// ReportViolationRequest is the payload for reporting an anti-cheat event.
type ReportViolationRequest struct {
	EventType string `json:"event_type" binding:"required,min=1,max=64"`
}
