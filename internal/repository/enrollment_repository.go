package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EnrollmentRepository manages selective subject enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Replace swaps the enrollment allowlist for (class, subject) with the given
// student IDs inside one transaction. Enrollment rows are never patched
// incrementally; every update is delete-all-then-insert. An empty studentIDs
// list clears the allowlist, returning the subject to open enrollment.
func (r *EnrollmentRepository) Replace(ctx context.Context, classID, subject string, studentIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const clear = `DELETE FROM subject_enrollments
        WHERE subject = $2 AND student_id IN (SELECT id FROM students WHERE class_id = $1)`
	if _, err := tx.ExecContext(ctx, clear, classID, subject); err != nil {
		return fmt.Errorf("clear enrollments: %w", err)
	}

	const insert = `INSERT INTO subject_enrollments (id, student_id, subject, created_at) VALUES ($1, $2, $3, $4)`
	now := time.Now().UTC()
	for _, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), studentID, subject, now); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment update: %w", err)
	}
	return nil
}

// ListStudentIDs returns the allowlisted student IDs for (class, subject).
// An empty result means the subject is open-enrolled for that class.
func (r *EnrollmentRepository) ListStudentIDs(ctx context.Context, classID, subject string) ([]string, error) {
	const query = `SELECT e.student_id FROM subject_enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE s.class_id = $1 AND e.subject = $2 ORDER BY e.created_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classID, subject); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return ids, nil
}
