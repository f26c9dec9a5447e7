package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formforge/formforge-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByForm retrieves a form's questions ordered by position.
func (r *QuestionRepository) ListByForm(ctx context.Context, formID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, form_id, title, type, required, points, correct_answer, options, position
		 FROM questions
		 WHERE form_id = $1
		 ORDER BY position ASC`, formID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options []byte
		if err := rows.Scan(&q.ID, &q.FormID, &q.Title, &q.Type, &q.Required, &q.Points, &q.CorrectAnswer, &options, &q.Position); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options: %w", err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	var options []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, form_id, title, type, required, points, correct_answer, options, position
		 FROM questions
		 WHERE id = $1`, id,
	).Scan(&q.ID, &q.FormID, &q.Title, &q.Type, &q.Required, &q.Points, &q.CorrectAnswer, &options, &q.Position)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return q, nil
}

// ReplaceForForm atomically swaps a form's question set. Positions follow
// the order of the input slice.
func (r *QuestionRepository) ReplaceForForm(ctx context.Context, formID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE form_id = $1`, formID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO questions (form_id, title, type, required, points, correct_answer, options, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			formID, q.Title, q.Type, q.Required, q.Points, q.CorrectAnswer, options, i,
		).Scan(&q.ID); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		q.FormID = formID
		q.Position = i
	}

	return tx.Commit(ctx)
}
