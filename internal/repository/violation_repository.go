package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formforge/formforge-backend/internal/model"
)

// ViolationRepository handles the append-only anti-cheat event log.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Append inserts a violation and increments the session's cached counter in
// the same transaction, returning the post-increment count. The log entry
// and the counter can never diverge: either both land or neither does.
func (r *ViolationRepository) Append(ctx context.Context, sessionID uuid.UUID, eventType string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO violations (session_id, event_type) VALUES ($1, $2)`,
		sessionID, eventType); err != nil {
		return 0, fmt.Errorf("insert violation: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`UPDATE form_sessions
		 SET violations_count = violations_count + 1
		 WHERE id = $1
		 RETURNING violations_count`,
		sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// ListBySession retrieves a session's violation log, oldest first.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, event_type, occurred_at
		 FROM violations
		 WHERE session_id = $1
		 ORDER BY occurred_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.SessionID, &v.EventType, &v.OccurredAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
