package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/grading"
	"github.com/formforge/formforge-backend/internal/model"
)

// ─── Fakes ──────────────────────────────────────────────────────────────

type memSessionStore struct {
	mu            sync.Mutex
	sessions      map[uuid.UUID]*model.FormSession
	overdue       []uuid.UUID
	nowFn         func() time.Time
	finalizeCalls int
	loseRace      bool
}

func newMemSessionStore(nowFn func() time.Time) *memSessionStore {
	return &memSessionStore{sessions: make(map[uuid.UUID]*model.FormSession), nowFn: nowFn}
}

func (m *memSessionStore) Create(_ context.Context, s *model.FormSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.StartedAt = m.nowFn()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.FormSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) Finalize(_ context.Context, id uuid.UUID, status model.SessionStatus,
	submittedAt time.Time, timeSpentSeconds int, score *float64, passed *bool) (bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeCalls++

	s, ok := m.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress || m.loseRace {
		return false, nil
	}
	s.Status = status
	s.SubmittedAt = &submittedAt
	s.TimeSpentSeconds = timeSpentSeconds
	s.Score = score
	s.Passed = passed
	return true, nil
}

func (m *memSessionStore) ListOverdue(_ context.Context, _ time.Time, limit int) ([]uuid.UUID, error) {
	if len(m.overdue) > limit {
		return m.overdue[:limit], nil
	}
	return m.overdue, nil
}

func (m *memSessionStore) bumpViolations(id uuid.UUID, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ViolationsCount = count
	}
}

type memResponseStore struct {
	mu        sync.Mutex
	responses map[uuid.UUID]map[uuid.UUID]*model.Response
	saved     map[uuid.UUID][]model.Response
}

func newMemResponseStore() *memResponseStore {
	return &memResponseStore{
		responses: make(map[uuid.UUID]map[uuid.UUID]*model.Response),
		saved:     make(map[uuid.UUID][]model.Response),
	}
}

func (m *memResponseStore) Upsert(_ context.Context, resp *model.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byQuestion, ok := m.responses[resp.SessionID]
	if !ok {
		byQuestion = make(map[uuid.UUID]*model.Response)
		m.responses[resp.SessionID] = byQuestion
	}
	if existing, ok := byQuestion[resp.QuestionID]; ok {
		resp.ID = existing.ID
	} else {
		resp.ID = uuid.New()
	}
	cp := *resp
	byQuestion[resp.QuestionID] = &cp
	return nil
}

func (m *memResponseStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Response
	for _, r := range m.responses[sessionID] {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memResponseStore) SaveEvaluations(_ context.Context, sessionID uuid.UUID, responses []model.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sessionID] = append([]model.Response(nil), responses...)
	return nil
}

type fakeForms struct {
	snapshots map[uuid.UUID]*model.FormSnapshot
}

func (f *fakeForms) Snapshot(_ context.Context, formID uuid.UUID) (*model.FormSnapshot, error) {
	snap, ok := f.snapshots[formID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return snap, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (f *fakeEvents) Publish(_ context.Context, event SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEvents) byType(eventType string) []SessionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SessionEvent
	for _, ev := range f.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// ─── Harness ────────────────────────────────────────────────────────────

type sessionEnv struct {
	svc        *SessionService
	sessions   *memSessionStore
	responses  *memResponseStore
	violations *fakeViolationStore
	events     *fakeEvents
	form       *model.Form
	questions  []model.Question

	mu  sync.Mutex
	now time.Time
}

func (e *sessionEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *sessionEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// newSessionEnv builds a service over in-memory stores with a 30 minute
// time limit, passing score 50, and a violation threshold of 3.
func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()

	formID := uuid.New()
	passing := 50.0
	limit := 30

	questions := []model.Question{
		{
			ID:            uuid.New(),
			FormID:        formID,
			Title:         "Capital of France",
			Type:          model.QuestionTypeMultipleChoice,
			Points:        2,
			CorrectAnswer: strPtr("opt-paris"),
			Options: []model.Option{
				{ID: "opt-paris", Content: "Paris"},
				{ID: "opt-rome", Content: "Rome"},
			},
			Position: 0,
		},
		{
			ID:            uuid.New(),
			FormID:        formID,
			Title:         "2 + 2",
			Type:          model.QuestionTypeShortText,
			Points:        2,
			CorrectAnswer: strPtr("4"),
			Position:      1,
		},
		{
			ID:       uuid.New(),
			FormID:   formID,
			Title:    "Any feedback?",
			Type:     model.QuestionTypeLongText,
			Points:   0,
			Position: 2,
		},
	}

	form := &model.Form{
		ID:     formID,
		Status: model.FormStatusOpen,
		Settings: model.FormSettings{
			TimeLimitMinutes: &limit,
			ShowScoreAfter:   true,
			PassingScore:     &passing,
			AntiCheat:        model.AntiCheatSettings{MaxViolations: 3},
		},
	}

	env := &sessionEnv{
		form:      form,
		questions: questions,
		now:       time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	env.sessions = newMemSessionStore(env.clock)
	env.responses = newMemResponseStore()
	env.violations = newFakeViolationStore()
	env.events = &fakeEvents{}

	forms := &fakeForms{snapshots: map[uuid.UUID]*model.FormSnapshot{
		formID: {Form: form, Questions: questions},
	}}

	env.svc = NewSessionService(
		env.sessions,
		env.responses,
		forms,
		NewViolationTracker(env.violations),
		env.events,
		zerolog.Nop(),
	)
	env.svc.now = env.clock

	return env
}

func (e *sessionEnv) start(t *testing.T) *model.FormSession {
	t.Helper()
	session, err := e.svc.Start(context.Background(), e.form.ID, &model.StartSessionRequest{})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func (e *sessionEnv) answer(t *testing.T, sessionID, questionID uuid.UUID, raw string) {
	t.Helper()
	if _, err := e.svc.RecordAnswer(context.Background(), sessionID, questionID, json.RawMessage(raw)); err != nil {
		t.Fatalf("record answer: %v", err)
	}
}

func strPtr(s string) *string { return &s }

// ─── Tests ──────────────────────────────────────────────────────────────

func TestStart(t *testing.T) {
	env := newSessionEnv(t)

	session := env.start(t)
	if session.Status != model.SessionStatusInProgress {
		t.Fatalf("expected in_progress, got %s", session.Status)
	}
	if session.ID == uuid.Nil {
		t.Fatal("expected session id to be assigned")
	}
	if got := env.events.byType(EventSessionStarted); len(got) != 1 {
		t.Fatalf("expected 1 started event, got %d", len(got))
	}
}

func TestStart_FormNotOpen(t *testing.T) {
	for _, status := range []model.FormStatus{model.FormStatusDraft, model.FormStatusClosed} {
		t.Run(string(status), func(t *testing.T) {
			env := newSessionEnv(t)
			env.form.Status = status

			_, err := env.svc.Start(context.Background(), env.form.ID, &model.StartSessionRequest{})
			if !errors.Is(err, ErrFormNotAcceptingResponses) {
				t.Fatalf("expected ErrFormNotAcceptingResponses, got %v", err)
			}
		})
	}
}

func TestStart_UnknownForm(t *testing.T) {
	env := newSessionEnv(t)

	_, err := env.svc.Start(context.Background(), uuid.New(), &model.StartSessionRequest{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordAnswer_LastWriteWins(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	mc := env.questions[0]

	env.answer(t, session.ID, mc.ID, `"opt-rome"`)
	env.answer(t, session.ID, mc.ID, `"opt-paris"`)

	stored, err := env.responses.ListBySession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected a single response row, got %d", len(stored))
	}
	if string(stored[0].Answer) != `"opt-paris"` {
		t.Fatalf("expected last write to win, got %s", stored[0].Answer)
	}
	if stored[0].IsCorrect != nil {
		t.Fatal("expected no grading before finalization")
	}
}

func TestRecordAnswer_Errors(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	ctx := context.Background()

	if _, err := env.svc.RecordAnswer(ctx, session.ID, uuid.New(), json.RawMessage(`"x"`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown question, got %v", err)
	}

	mc := env.questions[0]
	if _, err := env.svc.RecordAnswer(ctx, session.ID, mc.ID, json.RawMessage(`[1,2]`)); !errors.Is(err, grading.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}

	if _, err := env.svc.Submit(ctx, session.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.svc.RecordAnswer(ctx, session.ID, mc.ID, json.RawMessage(`"opt-paris"`)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after submit, got %v", err)
	}
}

func TestSubmit_ScoresOnce(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	ctx := context.Background()

	env.answer(t, session.ID, env.questions[0].ID, `"opt-paris"`)
	env.answer(t, session.ID, env.questions[1].ID, `"four"`)
	env.advance(10 * time.Minute)

	result, err := env.svc.Submit(ctx, session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := result.Session
	if got.Status != model.SessionStatusSubmitted {
		t.Fatalf("expected submitted, got %s", got.Status)
	}
	if got.Score == nil || *got.Score != 50.0 {
		t.Fatalf("expected score=50, got %v", got.Score)
	}
	if got.Passed == nil || !*got.Passed {
		t.Fatalf("expected passed=true at the boundary, got %v", got.Passed)
	}
	if got.TimeSpentSeconds != 600 {
		t.Fatalf("expected time_spent=600, got %d", got.TimeSpentSeconds)
	}
	if !result.ShowScore {
		t.Fatal("expected ShowScore to follow form settings")
	}

	saved := env.responses.saved[session.ID]
	if len(saved) != 2 {
		t.Fatalf("expected 2 graded responses saved, got %d", len(saved))
	}
	if got := env.events.byType(EventSessionSubmitted); len(got) != 1 {
		t.Fatalf("expected 1 submitted event, got %d", len(got))
	}
}

func TestSubmit_Idempotent(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	ctx := context.Background()

	env.answer(t, session.ID, env.questions[0].ID, `"opt-paris"`)

	first, err := env.svc.Submit(ctx, session.ID)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	env.advance(5 * time.Minute)
	second, err := env.svc.Submit(ctx, session.ID)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if second.Session.Status != model.SessionStatusSubmitted {
		t.Fatalf("expected submitted, got %s", second.Session.Status)
	}
	if *second.Session.Score != *first.Session.Score {
		t.Fatalf("expected stored score %v, got %v", *first.Session.Score, *second.Session.Score)
	}
	if second.Session.TimeSpentSeconds != first.Session.TimeSpentSeconds {
		t.Fatal("expected retry to return the stored result unchanged")
	}
	if env.sessions.finalizeCalls != 1 {
		t.Fatalf("expected exactly one finalize write, got %d", env.sessions.finalizeCalls)
	}
}

func TestSubmit_LateSubmitClampsTime(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)

	env.answer(t, session.ID, env.questions[0].ID, `"opt-paris"`)
	env.advance(45 * time.Minute)

	result, err := env.svc.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Session.Status != model.SessionStatusSubmitted {
		t.Fatalf("late submit should still count as submitted, got %s", result.Session.Status)
	}
	if result.Session.TimeSpentSeconds != 1800 {
		t.Fatalf("expected time clamped to 1800s, got %d", result.Session.TimeSpentSeconds)
	}
}

func TestSubmit_LostRaceReturnsStoredResult(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	ctx := context.Background()

	first, err := env.svc.Submit(ctx, session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Force the CAS to fail as if another writer got there first.
	env.sessions.loseRace = true
	env.sessions.mu.Lock()
	env.sessions.sessions[session.ID].Status = model.SessionStatusInProgress
	env.sessions.mu.Unlock()

	result, err := env.svc.Submit(ctx, session.ID)
	if err != nil {
		t.Fatalf("submit after lost race: %v", err)
	}
	if result.Session.Status != model.SessionStatusInProgress {
		t.Fatalf("expected the stored row back unchanged, got %s", result.Session.Status)
	}
	_ = first
}

func TestPoll_Remaining(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)

	env.advance(10 * time.Minute)
	state, err := env.svc.Poll(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Session.Status != model.SessionStatusInProgress {
		t.Fatalf("expected in_progress, got %s", state.Session.Status)
	}
	if state.RemainingSeconds == nil || *state.RemainingSeconds != 1200 {
		t.Fatalf("expected 1200s remaining, got %v", state.RemainingSeconds)
	}
}

func TestPoll_RealizesExpiry(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)

	env.answer(t, session.ID, env.questions[0].ID, `"opt-paris"`)
	env.advance(31 * time.Minute)

	state, err := env.svc.Poll(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Session.Status != model.SessionStatusExpired {
		t.Fatalf("expected expired, got %s", state.Session.Status)
	}
	if state.Session.Score == nil || *state.Session.Score != 50.0 {
		t.Fatalf("expected answers recorded before the deadline to score, got %v", state.Session.Score)
	}
	if state.Session.TimeSpentSeconds != 1800 {
		t.Fatalf("expected time clamped to limit, got %d", state.Session.TimeSpentSeconds)
	}
	if got := env.events.byType(EventSessionExpired); len(got) != 1 {
		t.Fatalf("expected 1 expired event, got %d", len(got))
	}

	// Subsequent polls are plain reads.
	calls := env.sessions.finalizeCalls
	if _, err := env.svc.Poll(context.Background(), session.ID); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if env.sessions.finalizeCalls != calls {
		t.Fatal("expected no further finalize writes after expiry")
	}
}

func TestPoll_UntimedFormNeverExpires(t *testing.T) {
	env := newSessionEnv(t)
	env.form.Settings.TimeLimitMinutes = nil
	session := env.start(t)

	env.advance(300 * time.Hour)
	state, err := env.svc.Poll(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Session.Status != model.SessionStatusInProgress {
		t.Fatalf("expected in_progress, got %s", state.Session.Status)
	}
	if state.RemainingSeconds != nil {
		t.Fatalf("expected no remaining time without a limit, got %v", *state.RemainingSeconds)
	}
}

func TestReportViolation_CountsWithoutBreach(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)

	result, err := env.svc.ReportViolation(context.Background(), session.ID, model.ViolationTabSwitch)
	if err != nil {
		t.Fatalf("report violation: %v", err)
	}
	if result.ViolationsCount != 1 || result.ForceClosed {
		t.Fatalf("expected count=1 force_closed=false, got count=%d force_closed=%v", result.ViolationsCount, result.ForceClosed)
	}
	if got := env.events.byType(EventViolationReported); len(got) != 1 {
		t.Fatalf("expected 1 violation event, got %d", len(got))
	}
}

func TestReportViolation_BreachForcesExpiry(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	ctx := context.Background()

	env.answer(t, session.ID, env.questions[0].ID, `"opt-paris"`)

	for i := 0; i < 2; i++ {
		result, err := env.svc.ReportViolation(ctx, session.ID, model.ViolationTabSwitch)
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if result.ForceClosed {
			t.Fatalf("unexpected force close at count=%d", result.ViolationsCount)
		}
		env.sessions.bumpViolations(session.ID, result.ViolationsCount)
	}

	result, err := env.svc.ReportViolation(ctx, session.ID, model.ViolationFullscreenExit)
	if err != nil {
		t.Fatalf("third report: %v", err)
	}
	if !result.ForceClosed {
		t.Fatal("expected force close at threshold")
	}
	if result.Session.Status != model.SessionStatusExpired {
		t.Fatalf("expected expired, got %s", result.Session.Status)
	}
	if result.Session.Score == nil {
		t.Fatal("expected the force-closed attempt to be scored")
	}

	if _, err := env.svc.ReportViolation(ctx, session.ID, model.ViolationTabSwitch); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after force close, got %v", err)
	}
}

func TestReportViolation_ExpiryWinsOverCounting(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)

	env.advance(31 * time.Minute)
	result, err := env.svc.ReportViolation(context.Background(), session.ID, model.ViolationTabSwitch)
	if err != nil {
		t.Fatalf("report violation: %v", err)
	}
	if !result.ForceClosed {
		t.Fatal("expected force close via expiry")
	}
	if result.Session.Status != model.SessionStatusExpired {
		t.Fatalf("expected expired, got %s", result.Session.Status)
	}
	if env.violations.counts[session.ID] != 0 {
		t.Fatalf("expected the late event not to be counted, got %d", env.violations.counts[session.ID])
	}
}

func TestResults(t *testing.T) {
	env := newSessionEnv(t)
	session := env.start(t)
	ctx := context.Background()

	if _, _, err := env.svc.Results(ctx, session.ID); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive before finalization, got %v", err)
	}

	env.answer(t, session.ID, env.questions[0].ID, `"opt-paris"`)
	if _, err := env.svc.Submit(ctx, session.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stored, responses, err := env.svc.Results(ctx, session.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if stored.Status != model.SessionStatusSubmitted {
		t.Fatalf("expected submitted, got %s", stored.Status)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
}

func TestSweepExpired(t *testing.T) {
	env := newSessionEnv(t)
	first := env.start(t)
	second := env.start(t)

	env.advance(31 * time.Minute)
	env.sessions.overdue = []uuid.UUID{first.ID, second.ID}

	inspected, err := env.svc.SweepExpired(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if inspected != 2 {
		t.Fatalf("expected 2 sessions inspected, got %d", inspected)
	}

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		stored, err := env.sessions.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if stored.Status != model.SessionStatusExpired {
			t.Fatalf("expected expired, got %s", stored.Status)
		}
	}
}

func TestSubmit_SurveyHasNoScore(t *testing.T) {
	env := newSessionEnv(t)
	for i := range env.questions {
		env.questions[i].Points = 0
	}
	session := env.start(t)

	env.answer(t, session.ID, env.questions[2].ID, `"loved it"`)
	result, err := env.svc.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Session.Score != nil {
		t.Fatalf("expected nil score for a survey, got %v", *result.Session.Score)
	}
	if result.Session.Passed != nil {
		t.Fatal("expected nil passed for a survey")
	}
}
