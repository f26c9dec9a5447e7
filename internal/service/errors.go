package service

import "errors"

// Domain errors surfaced to the HTTP boundary. All of them are recoverable
// by the caller; none indicate corrupted engine state.
var (
	// ErrSessionClosed is returned when a mutation is attempted on a
	// terminal session. Submit and Poll are exempt because they are
	// idempotent.
	ErrSessionClosed = errors.New("session is already finalized")

	// ErrFormNotAcceptingResponses is returned when an attempt is started
	// on a form that is not open.
	ErrFormNotAcceptingResponses = errors.New("form is not accepting responses")

	// ErrSessionActive is returned when results are requested for a
	// session that has not been finalized yet.
	ErrSessionActive = errors.New("session is still in progress")

	// ErrNotFound is returned for unknown session, form, or question ids.
	ErrNotFound = errors.New("resource not found")

	// ErrPersistenceTransient wraps storage timeouts and conflicts. Safe
	// for the caller to retry; never retried silently inside a session
	// critical section.
	ErrPersistenceTransient = errors.New("storage temporarily unavailable")

	ErrNotFormOwner = errors.New("not the owner of this form")
	ErrFormNotDraft = errors.New("form status is not draft")
	ErrNoQuestions  = errors.New("form has no questions")
)
