package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates form session states. A session starts in
// in_progress and moves exactly once to submitted (respondent-initiated)
// or expired (system-initiated). Terminal states are sticky.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusSubmitted  SessionStatus = "submitted"
	SessionStatusExpired    SessionStatus = "expired"
)

// Terminal reports whether the status is one of the terminal states.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusExpired
}

// FormSession represents one respondent attempt at a form.
// Invariant: SubmittedAt is non-nil iff Status is terminal.
type FormSession struct {
	ID               uuid.UUID     `json:"id"`
	FormID           uuid.UUID     `json:"form_id"`
	RespondentName   *string       `json:"respondent_name,omitempty"`
	RespondentEmail  *string       `json:"respondent_email,omitempty"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	TimeSpentSeconds int           `json:"time_spent_seconds"`
	Score            *float64      `json:"score,omitempty"`
	Passed           *bool         `json:"passed,omitempty"`
	ViolationsCount  int           `json:"violations_count"`
}

// Response is one respondent answer, unique per (session, question).
// IsCorrect is nil for ungradable types; PointsEarned never exceeds the
// question's configured points.
type Response struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	QuestionID   uuid.UUID       `json:"question_id"`
	Answer       json.RawMessage `json:"answer"`
	IsCorrect    *bool           `json:"is_correct,omitempty"`
	PointsEarned int             `json:"points_earned"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// StartSessionRequest is the payload for starting an attempt.
type StartSessionRequest struct {
	RespondentName  *string `json:"respondent_name" binding:"omitempty,min=1,max=255"`
	RespondentEmail *string `json:"respondent_email" binding:"omitempty,email,max=255"`
}

// AnswerRequest is the payload for recording an answer.
type AnswerRequest struct {
	Answer json.RawMessage `json:"answer" binding:"required"`
}
