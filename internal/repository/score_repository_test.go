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

func TestScoreRepositoryUpsertOverwrites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM scores WHERE student_id = $1 AND assessment = $2 AND subject = $3")).
		WithArgs("s1", "1st CA", "Physics").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("score-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scores SET value = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("score-1", "9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), "s1", "1st CA", "Physics", "9")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryUpsertInserts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM scores WHERE student_id = $1 AND assessment = $2 AND subject = $3")).
		WithArgs("s1", "Exam", "General").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO scores").
		WithArgs(sqlmock.AnyArg(), "s1", "Exam", "General", "17", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), "s1", "Exam", "General", "17")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryListByClassAndSubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "assessment", "subject", "value", "created_at", "updated_at"}).
		AddRow("sc1", "s1", "1st CA", "Physics", "8", time.Now(), time.Now()).
		AddRow("sc2", "s2", "Exam", "Physics", "41", time.Now(), time.Now())
	mock.ExpectQuery("SELECT sc.id, sc.student_id, sc.assessment, sc.subject, sc.value, sc.created_at, sc.updated_at").
		WithArgs("c1", "Physics").
		WillReturnRows(rows)

	scores, err := repo.ListByClassAndSubject(context.Background(), "c1", "Physics")
	require.NoError(t, err)
	assert.Len(t, scores, 2)
	assert.Equal(t, "8", scores[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
