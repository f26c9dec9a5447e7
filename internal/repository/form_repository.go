package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formforge/formforge-backend/internal/model"
)

// FormRepository handles form data access.
type FormRepository struct {
	pool *pgxpool.Pool
}

// NewFormRepository creates a new FormRepository.
func NewFormRepository(pool *pgxpool.Pool) *FormRepository {
	return &FormRepository{pool: pool}
}

// GetByID retrieves a form by its UUID.
func (r *FormRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Form, error) {
	f := &model.Form{}
	var settings []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, description, status, settings, created_at, updated_at
		 FROM forms
		 WHERE id = $1`, id,
	).Scan(&f.ID, &f.OwnerID, &f.Title, &f.Description, &f.Status, &settings, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &f.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return f, nil
}

// Create inserts a new form as draft.
func (r *FormRepository) Create(ctx context.Context, f *model.Form) error {
	settings, err := json.Marshal(f.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO forms (owner_id, title, description, status, settings)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		f.OwnerID, f.Title, f.Description, f.Status, settings,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

// Update modifies title, description, and settings of an existing form.
func (r *FormRepository) Update(ctx context.Context, f *model.Form) error {
	settings, err := json.Marshal(f.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE forms
		 SET title = $2, description = $3, settings = $4, updated_at = NOW()
		 WHERE id = $1`,
		f.ID, f.Title, f.Description, settings)
	return err
}

// UpdateStatus moves a form along its lifecycle.
func (r *FormRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.FormStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE forms SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	return err
}

// Delete removes a form. Sessions, responses, and violations cascade.
func (r *FormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM forms WHERE id = $1`, id)
	return err
}

// ListByOwnerPaginated retrieves a creator's forms, newest first.
func (r *FormRepository) ListByOwnerPaginated(ctx context.Context, ownerID, limit, offset int) ([]model.Form, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM forms WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, title, description, status, settings, created_at, updated_at
		 FROM forms
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var forms []model.Form
	for rows.Next() {
		var f model.Form
		var settings []byte
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Title, &f.Description, &f.Status, &settings, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(settings, &f.Settings); err != nil {
			return nil, 0, fmt.Errorf("unmarshal settings: %w", err)
		}
		forms = append(forms, f)
	}
	return forms, total, rows.Err()
}
