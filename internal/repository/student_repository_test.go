package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryFindOrCreateTitleCases(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, name, created_at, updated_at FROM students WHERE class_id = $1 AND name = $2")).
		WithArgs("c1", "John Doe").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "c1", "John Doe", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student, err := repo.FindOrCreate(context.Background(), "c1", "john doe")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", student.Name)
	assert.Equal(t, "c1", student.ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindOrCreateReturnsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "class_id", "name", "created_at", "updated_at"}).
		AddRow("s1", "c1", "John Doe", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, name, created_at, updated_at FROM students WHERE class_id = $1 AND name = $2")).
		WithArgs("c1", "John Doe").
		WillReturnRows(rows)

	student, err := repo.FindOrCreate(context.Background(), "c1", "JOHN DOE")
	require.NoError(t, err)
	assert.Equal(t, "s1", student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListNames(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"name"}).AddRow("Jane Doe").AddRow("John Doe")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM students WHERE class_id = $1 ORDER BY name ASC")).
		WithArgs("c1").
		WillReturnRows(rows)

	names, err := repo.ListNames(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Doe", "John Doe"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}
