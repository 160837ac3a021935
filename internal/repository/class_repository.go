package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/normalize"
)

// ClassRepository manages persistence for roster classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns all classes ordered by name.
func (r *ClassRepository) List(ctx context.Context) ([]models.Class, error) {
	const query = `SELECT id, name, created_at, updated_at FROM classes ORDER BY name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByName looks a class up by its normalized name, case-insensitively.
func (r *ClassRepository) FindByName(ctx context.Context, rawName string) (*models.Class, error) {
	normalized := normalize.Class(rawName)
	const query = `SELECT id, name, created_at, updated_at FROM classes WHERE LOWER(name) = LOWER($1)`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, normalized); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindOrCreate normalizes rawName and returns the matching class, creating it
// when absent. A lost insert race resolves to the concurrently created row, so
// equivalent raw names always map to the same entity.
func (r *ClassRepository) FindOrCreate(ctx context.Context, rawName string) (*models.Class, error) {
	normalized := normalize.Class(rawName)
	if normalized == "" {
		return nil, fmt.Errorf("class name empty")
	}

	class, err := r.FindByName(ctx, normalized)
	if err == nil {
		return class, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find class: %w", err)
	}

	now := time.Now().UTC()
	created := &models.Class{ID: uuid.NewString(), Name: normalized, CreatedAt: now, UpdatedAt: now}
	const insert = `INSERT INTO classes (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, created); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return r.FindByName(ctx, normalized)
		}
		return nil, fmt.Errorf("create class: %w", err)
	}
	return created, nil
}

// Delete removes a class; students and their scores cascade via foreign keys.
// Maintenance operation, never invoked by the reconciliation core.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}
