package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gradesheet/gradesheet-api/internal/models"
)

// ScoreRepository manages the per-student, per-subject score ledger.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs a new score repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// Upsert writes the value for one (student, assessment, subject) triple,
// overwriting any existing row. Last write wins, both within a merge call and
// across overlapping calls; there is no version check. The triple invariant
// is held by this find-then-write sequence rather than a unique constraint.
func (r *ScoreRepository) Upsert(ctx context.Context, studentID, assessment, subject, value string) error {
	const find = `SELECT id FROM scores WHERE student_id = $1 AND assessment = $2 AND subject = $3`
	var id string
	err := r.db.GetContext(ctx, &id, find, studentID, assessment, subject)
	switch {
	case err == nil:
		const update = `UPDATE scores SET value = $2, updated_at = $3 WHERE id = $1`
		if _, err := r.db.ExecContext(ctx, update, id, value, time.Now().UTC()); err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		const insert = `INSERT INTO scores (id, student_id, assessment, subject, value, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), studentID, assessment, subject, value, now, now); err != nil {
			return fmt.Errorf("insert score: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find score: %w", err)
	}
}

// ListByClassAndSubject returns all score rows for students of a class in one
// subject, ordered stably for report assembly.
func (r *ScoreRepository) ListByClassAndSubject(ctx context.Context, classID, subject string) ([]models.Score, error) {
	const query = `SELECT sc.id, sc.student_id, sc.assessment, sc.subject, sc.value, sc.created_at, sc.updated_at
        FROM scores sc JOIN students s ON s.id = sc.student_id
        WHERE s.class_id = $1 AND sc.subject = $2 ORDER BY sc.created_at ASC, sc.id ASC`
	var scores []models.Score
	if err := r.db.SelectContext(ctx, &scores, query, classID, subject); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}
