package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/grading"
	"github.com/formforge/formforge-backend/internal/model"
)

// storageTimeout bounds every persistence write inside a session critical
// section. A write that exceeds it surfaces as ErrPersistenceTransient and
// the session stays in_progress; nothing is retried while the lock is held.
const storageTimeout = 5 * time.Second

// SessionStore is the persistence contract for session rows.
type SessionStore interface {
	Create(ctx context.Context, s *model.FormSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.FormSession, error)
	Finalize(ctx context.Context, id uuid.UUID, status model.SessionStatus,
		submittedAt time.Time, timeSpentSeconds int, score *float64, passed *bool) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ResponseStore is the persistence contract for respondent answers.
type ResponseStore interface {
	Upsert(ctx context.Context, resp *model.Response) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error)
	SaveEvaluations(ctx context.Context, sessionID uuid.UUID, responses []model.Response) error
}

// FormSnapshotProvider resolves the form and question set a session is
// evaluated against.
type FormSnapshotProvider interface {
	Snapshot(ctx context.Context, formID uuid.UUID) (*model.FormSnapshot, error)
}

// SessionService owns the session lifecycle: starting attempts, recording
// answers, counting violations, realizing expiry, and finalizing with a
// single scoring run. All transitions happen under a per-session lock plus
// a compare-and-swap status update, so a submit racing an expiry (or a
// duplicate submit) resolves to exactly one finalization.
type SessionService struct {
	sessions  SessionStore
	responses ResponseStore
	forms     FormSnapshotProvider
	tracker   *ViolationTracker
	guard     TimeGuard
	events    EventPublisher
	locks     *sessionLocks
	log       zerolog.Logger
	now       func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	responses ResponseStore,
	forms FormSnapshotProvider,
	tracker *ViolationTracker,
	events EventPublisher,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		responses: responses,
		forms:     forms,
		tracker:   tracker,
		events:    events,
		locks:     newSessionLocks(),
		log:       log.With().Str("component", "session_service").Logger(),
		now:       time.Now,
	}
}

// SessionState is the poll result: the session row plus, for in_progress
// sessions on a timed form, the seconds remaining.
type SessionState struct {
	Session          *model.FormSession `json:"session"`
	RemainingSeconds *float64           `json:"remaining_seconds,omitempty"`
	ShowScore        bool               `json:"-"`
}

// ViolationResult reports the outcome of one violation report.
type ViolationResult struct {
	Session         *model.FormSession `json:"session"`
	ViolationsCount int                `json:"violations_count"`
	ForceClosed     bool               `json:"force_closed"`
}

// SubmitResult bundles the finalized session with the form's score
// visibility setting so the handler can decide what to reveal.
type SubmitResult struct {
	Session   *model.FormSession
	ShowScore bool
}

// Start creates a new in_progress session on an open form.
func (s *SessionService) Start(ctx context.Context, formID uuid.UUID, req *model.StartSessionRequest) (*model.FormSession, error) {
	snapshot, err := s.forms.Snapshot(ctx, formID)
	if err != nil {
		return nil, mapStoreErr("get form", err)
	}
	if snapshot.Form.Status != model.FormStatusOpen {
		return nil, ErrFormNotAcceptingResponses
	}

	session := &model.FormSession{
		FormID:          formID,
		RespondentName:  req.RespondentName,
		RespondentEmail: req.RespondentEmail,
		Status:          model.SessionStatusInProgress,
	}

	wctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	if err := s.sessions.Create(wctx, session); err != nil {
		return nil, mapStoreErr("create session", err)
	}

	s.events.Publish(ctx, SessionEvent{
		Type:           EventSessionStarted,
		FormID:         formID,
		SessionID:      session.ID,
		RespondentName: session.RespondentName,
		Status:         string(session.Status),
		OccurredAt:     session.StartedAt,
	})

	return session, nil
}

// RecordAnswer upserts the answer for one question. Last write wins; the
// answer is shape-checked but never graded here. Expiry is not realized on
// this path: the hot autosave loop only checks stored status, and time
// enforcement happens at poll, violation report, and submit.
func (s *SessionService) RecordAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer json.RawMessage) (*model.Response, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	snapshot, err := s.forms.Snapshot(ctx, session.FormID)
	if err != nil {
		return nil, mapStoreErr("get form", err)
	}
	question := snapshot.QuestionByID(questionID)
	if question == nil {
		return nil, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	if err := grading.ValidateAnswer(question, answer); err != nil {
		return nil, err
	}

	resp := &model.Response{
		SessionID:  sessionID,
		QuestionID: questionID,
		Answer:     answer,
	}

	wctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	if err := s.responses.Upsert(wctx, resp); err != nil {
		return nil, mapStoreErr("save answer", err)
	}
	return resp, nil
}

// ReportViolation appends one anti-cheat event and force-closes the session
// when the form's threshold is reached. If the time limit already elapsed,
// the report loses to expiry: the event is not counted and the session is
// finalized as expired.
func (s *SessionService) ReportViolation(ctx context.Context, sessionID uuid.UUID, eventType string) (*ViolationResult, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	snapshot, err := s.forms.Snapshot(ctx, session.FormID)
	if err != nil {
		return nil, mapStoreErr("get form", err)
	}
	settings := &snapshot.Form.Settings

	if s.guard.Expired(settings, session.StartedAt, s.now()) {
		finalized, err := s.finalize(ctx, session, snapshot, model.SessionStatusExpired)
		if err != nil {
			return nil, err
		}
		return &ViolationResult{
			Session:         finalized,
			ViolationsCount: finalized.ViolationsCount,
			ForceClosed:     true,
		}, nil
	}

	wctx, cancel := context.WithTimeout(ctx, storageTimeout)
	count, breached, err := s.tracker.Record(wctx, sessionID, eventType, settings.AntiCheat.MaxViolations)
	cancel()
	if err != nil {
		return nil, mapStoreErr("record violation", err)
	}
	session.ViolationsCount = count

	s.events.Publish(ctx, SessionEvent{
		Type:            EventViolationReported,
		FormID:          session.FormID,
		SessionID:       session.ID,
		RespondentName:  session.RespondentName,
		Status:          string(session.Status),
		ViolationsCount: count,
		OccurredAt:      s.now(),
	})

	if !breached {
		return &ViolationResult{Session: session, ViolationsCount: count}, nil
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("violations", count).
		Msg("violation threshold reached, force closing session")

	finalized, err := s.finalize(ctx, session, snapshot, model.SessionStatusExpired)
	if err != nil {
		return nil, err
	}
	return &ViolationResult{
		Session:         finalized,
		ViolationsCount: count,
		ForceClosed:     true,
	}, nil
}

// Poll returns the session's current state, realizing expiry lazily: a
// timed-out in_progress session is finalized as expired before the state is
// returned. Polling a terminal session never writes.
func (s *SessionService) Poll(ctx context.Context, sessionID uuid.UUID) (*SessionState, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.forms.Snapshot(ctx, session.FormID)
	if err != nil {
		return nil, mapStoreErr("get form", err)
	}
	settings := &snapshot.Form.Settings
	showScore := settings.ShowScoreAfter

	if session.Status.Terminal() {
		return &SessionState{Session: session, ShowScore: showScore}, nil
	}

	now := s.now()
	if s.guard.Expired(settings, session.StartedAt, now) {
		finalized, err := s.finalize(ctx, session, snapshot, model.SessionStatusExpired)
		if err != nil {
			return nil, err
		}
		return &SessionState{Session: finalized, ShowScore: showScore}, nil
	}

	state := &SessionState{Session: session, ShowScore: showScore}
	if remaining, ok := s.guard.Remaining(settings, session.StartedAt, now); ok {
		seconds := remaining.Seconds()
		state.RemainingSeconds = &seconds
	}
	return state, nil
}

// Submit finalizes the session on the respondent's request. Submitting an
// already-terminal session returns the stored result unchanged, so client
// retries are safe. A submit that arrives after the deadline still counts
// as submitted; the recorded time is clamped to the limit.
func (s *SessionService) Submit(ctx context.Context, sessionID uuid.UUID) (*SubmitResult, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.forms.Snapshot(ctx, session.FormID)
	if err != nil {
		return nil, mapStoreErr("get form", err)
	}

	if session.Status.Terminal() {
		return &SubmitResult{
			Session:   session,
			ShowScore: snapshot.Form.Settings.ShowScoreAfter,
		}, nil
	}

	finalized, err := s.finalize(ctx, session, snapshot, model.SessionStatusSubmitted)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{
		Session:   finalized,
		ShowScore: snapshot.Form.Settings.ShowScoreAfter,
	}, nil
}

// Results returns a session's per-question grading outcomes. Only available
// once the session is terminal.
func (s *SessionService) Results(ctx context.Context, sessionID uuid.UUID) (*model.FormSession, []model.Response, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !session.Status.Terminal() {
		return nil, nil, ErrSessionActive
	}

	responses, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, mapStoreErr("list responses", err)
	}
	return session, responses, nil
}

// SweepExpired finds overdue in_progress sessions and realizes their expiry
// through the same path a poll would take. Returns how many sessions were
// inspected.
func (s *SessionService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.sessions.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return 0, mapStoreErr("list overdue sessions", err)
	}

	for _, id := range ids {
		if _, err := s.Poll(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to expire overdue session")
		}
	}
	return len(ids), nil
}

// finalize runs the single scoring pass and performs the compare-and-swap
// transition. Must be called with the session lock held. If another writer
// already finalized the row, the stored result is returned and no
// evaluations are written.
func (s *SessionService) finalize(ctx context.Context, session *model.FormSession, snapshot *model.FormSnapshot, status model.SessionStatus) (*model.FormSession, error) {
	responses, err := s.responses.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, mapStoreErr("list responses", err)
	}

	results := make(map[uuid.UUID]grading.Result, len(responses))
	graded := responses[:0]
	for i := range responses {
		question := snapshot.QuestionByID(responses[i].QuestionID)
		if question == nil {
			// Question deleted mid-attempt. The orphaned answer is kept
			// but contributes nothing to the score.
			continue
		}
		result := grading.Evaluate(question, responses[i].Answer)
		responses[i].IsCorrect = result.IsCorrect
		responses[i].PointsEarned = result.PointsEarned
		results[responses[i].QuestionID] = result
		graded = append(graded, responses[i])
	}

	settings := &snapshot.Form.Settings
	summary := grading.Summarize(snapshot.Questions, results, settings.PassingScore)

	now := s.now()
	timeSpent := s.guard.TimeSpentSeconds(settings, session.StartedAt, now)

	wctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	won, err := s.sessions.Finalize(wctx, session.ID, status, now, timeSpent, summary.Score, summary.Passed)
	if err != nil {
		return nil, mapStoreErr("finalize session", err)
	}
	if !won {
		// Another writer (e.g. the sweep worker) finalized first. Their
		// result stands.
		stored, err := s.loadSession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		return stored, nil
	}

	if err := s.responses.SaveEvaluations(wctx, session.ID, graded); err != nil {
		// The session is already terminal; per-question outcomes can be
		// recomputed from the stored answers if this write is lost.
		s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to save evaluations")
	}

	session.Status = status
	session.SubmittedAt = &now
	session.TimeSpentSeconds = timeSpent
	session.Score = summary.Score
	session.Passed = summary.Passed

	s.events.Publish(ctx, terminalEvent(session, now))

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("status", string(status)).
		Int("time_spent_seconds", timeSpent).
		Msg("session finalized")

	return session, nil
}

func (s *SessionService) loadSession(ctx context.Context, id uuid.UUID) (*model.FormSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr("get session", err)
	}
	return session, nil
}

// mapStoreErr translates storage failures into domain errors. Row misses
// become ErrNotFound; timeouts become ErrPersistenceTransient so the
// handler can answer with a retryable status.
func mapStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrPersistenceTransient)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
