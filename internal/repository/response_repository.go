package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formforge/formforge-backend/internal/model"
)

// ResponseRepository handles respondent answer data access.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// Upsert writes or overwrites the answer for a (session, question) pair.
// Resubmitting replaces the previous answer and resets any grading columns;
// grading only happens once, at finalization.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *model.Response) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO responses (session_id, question_id, answer)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, is_correct = NULL, points_earned = 0, updated_at = NOW()
		 RETURNING id, updated_at`,
		resp.SessionID, resp.QuestionID, resp.Answer,
	).Scan(&resp.ID, &resp.UpdatedAt)
}

// ListBySession retrieves all responses of a session.
func (r *ResponseRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, question_id, answer, is_correct, points_earned, updated_at
		 FROM responses
		 WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var resp model.Response
		if err := rows.Scan(&resp.ID, &resp.SessionID, &resp.QuestionID, &resp.Answer,
			&resp.IsCorrect, &resp.PointsEarned, &resp.UpdatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// SaveEvaluations bulk-writes grading outcomes at finalization using a
// single UNNEST update. Called exactly once per session, by the winner of
// the finalization race.
func (r *ResponseRepository) SaveEvaluations(ctx context.Context, sessionID uuid.UUID, responses []model.Response) error {
	if len(responses) == 0 {
		return nil
	}

	n := len(responses)
	questionIDs := make([]uuid.UUID, 0, n)
	isCorrect := make([]*bool, 0, n)
	points := make([]int, 0, n)

	for i := range responses {
		questionIDs = append(questionIDs, responses[i].QuestionID)
		isCorrect = append(isCorrect, responses[i].IsCorrect)
		points = append(points, responses[i].PointsEarned)
	}

	query := `
		UPDATE responses AS r
		SET is_correct = t.is_correct,
		    points_earned = t.points_earned
		FROM (
			SELECT
				u.question_id,
				u.is_correct,
				u.points_earned
			FROM UNNEST(
				$2::uuid[],
				$3::bool[],
				$4::int[]
			) AS u (question_id, is_correct, points_earned)
		) AS t
		WHERE r.session_id = $1
		  AND r.question_id = t.question_id
	`

	_, err := r.pool.Exec(ctx, query, sessionID, questionIDs, isCorrect, points)
	return err
}
