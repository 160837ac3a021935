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
	"github.com/gradesheet/gradesheet-api/pkg/normalize"
)

// StudentRepository manages persistence for roster students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student with its class name.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.class_id, s.name, s.created_at, s.updated_at, c.name AS class_name
        FROM students s JOIN classes c ON c.id = s.class_id WHERE s.id = $1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByClass returns every student in a class ordered by name.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	const query = `SELECT id, class_id, name, created_at, updated_at FROM students WHERE class_id = $1 ORDER BY name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListNames returns the roster names of a class, the fuzzy-match candidate pool.
func (r *StudentRepository) ListNames(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT name FROM students WHERE class_id = $1 ORDER BY name ASC`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query, classID); err != nil {
		return nil, fmt.Errorf("list roster names: %w", err)
	}
	return names, nil
}

// FindByName performs the exact case-sensitive lookup on the title-cased name
// within a class.
func (r *StudentRepository) FindByName(ctx context.Context, classID, name string) (*models.Student, error) {
	const query = `SELECT id, class_id, name, created_at, updated_at FROM students WHERE class_id = $1 AND name = $2`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, classID, normalize.TitleCase(name)); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindOrCreate returns the student with the given title-cased name within a
// class, creating it when absent. Uniqueness relies on this existence check,
// not a constraint, so concurrent inserts can race; the core accepts that.
func (r *StudentRepository) FindOrCreate(ctx context.Context, classID, name string) (*models.Student, error) {
	titled := normalize.TitleCase(name)
	if titled == "" {
		return nil, fmt.Errorf("student name empty")
	}

	student, err := r.FindByName(ctx, classID, titled)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find student: %w", err)
	}

	now := time.Now().UTC()
	created := &models.Student{ID: uuid.NewString(), ClassID: classID, Name: titled, CreatedAt: now, UpdatedAt: now}
	const insert = `INSERT INTO students (id, class_id, name, created_at, updated_at) VALUES (:id, :class_id, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, created); err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}
	return created, nil
}

// Rename updates a student's display name.
func (r *StudentRepository) Rename(ctx context.Context, id, name string) error {
	const query = `UPDATE students SET name = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, normalize.TitleCase(name), time.Now().UTC()); err != nil {
		return fmt.Errorf("rename student: %w", err)
	}
	return nil
}

// Move reassigns a student to a different class.
func (r *StudentRepository) Move(ctx context.Context, id, classID string) error {
	const query = `UPDATE students SET class_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("move student: %w", err)
	}
	return nil
}

// Delete removes a student; scores and enrollments cascade via foreign keys.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}
