package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formforge/formforge-backend/internal/model"
)

// FormSessionRepository handles form session data access.
type FormSessionRepository struct {
	pool *pgxpool.Pool
}

// NewFormSessionRepository creates a new FormSessionRepository.
func NewFormSessionRepository(pool *pgxpool.Pool) *FormSessionRepository {
	return &FormSessionRepository{pool: pool}
}

const sessionColumns = `id, form_id, respondent_name, respondent_email, status,
	started_at, submitted_at, time_spent_seconds, score, passed, violations_count`

func scanSession(row interface{ Scan(...any) error }) (*model.FormSession, error) {
	s := &model.FormSession{}
	err := row.Scan(&s.ID, &s.FormID, &s.RespondentName, &s.RespondentEmail, &s.Status,
		&s.StartedAt, &s.SubmittedAt, &s.TimeSpentSeconds, &s.Score, &s.Passed, &s.ViolationsCount)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session in in_progress state.
func (r *FormSessionRepository) Create(ctx context.Context, s *model.FormSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO form_sessions (form_id, respondent_name, respondent_email, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, started_at`,
		s.FormID, s.RespondentName, s.RespondentEmail, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt)
}

// GetByID retrieves a session by its UUID.
func (r *FormSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.FormSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM form_sessions WHERE id = $1`, id))
}

// Finalize moves a session out of in_progress with compare-and-swap
// semantics: the WHERE clause only matches while the session is still
// in_progress, so exactly one caller wins a finalization race. Returns
// false when the session was already terminal.
func (r *FormSessionRepository) Finalize(ctx context.Context, id uuid.UUID, status model.SessionStatus,
	submittedAt time.Time, timeSpentSeconds int, score *float64, passed *bool) (bool, error) {

	tag, err := r.pool.Exec(ctx,
		`UPDATE form_sessions
		 SET status = $2, submitted_at = $3, time_spent_seconds = $4, score = $5, passed = $6
		 WHERE id = $1 AND status = $7`,
		id, status, submittedAt, timeSpentSeconds, score, passed, model.SessionStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListOverdue returns ids of in_progress sessions whose time limit has
// already elapsed, for the expiry sweep. Forms without a time limit are
// never matched.
func (r *FormSessionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM form_sessions s
		 JOIN forms f ON f.id = s.form_id
		 WHERE s.status = $1
		   AND (f.settings->>'time_limit_minutes') IS NOT NULL
		   AND s.started_at + ((f.settings->>'time_limit_minutes')::int * interval '1 minute') <= $2
		 LIMIT $3`,
		model.SessionStatusInProgress, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByFormPaginated retrieves sessions for a form, newest first.
func (r *FormSessionRepository) ListByFormPaginated(ctx context.Context, formID uuid.UUID, limit, offset int) ([]model.FormSession, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM form_sessions WHERE form_id = $1`, formID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM form_sessions
		 WHERE form_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, formID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []model.FormSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, total, rows.Err()
}
