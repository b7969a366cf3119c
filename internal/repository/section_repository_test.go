package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

func newSectionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSectionRepositoryLockForUpdateTx(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "term_id", "professor_profile_id", "capacity", "status", "created_at", "updated_at"}).
		AddRow("sec-1", "crs-1", "term-1", "pp-1", 30, models.SectionStatusOpen, time.Now(), time.Now())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, course_id, term_id, professor_profile_id, capacity, status, created_at, updated_at FROM sections WHERE id = .+ FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(rows)
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	section, err := repo.LockForUpdateTx(context.Background(), tx, "sec-1")
	require.NoError(t, err)
	require.Equal(t, "sec-1", section.ID)
	require.Equal(t, 30, section.Capacity)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery("SELECT id, course_id, term_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
		WithArgs(sqlmock.AnyArg(), "crs-1", "term-1", "pp-1", 40, models.SectionStatusOpen).
		WillReturnResult(sqlmock.NewResult(1, 1))

	section := &models.Section{
		CourseID:           "crs-1",
		TermID:             "term-1",
		ProfessorProfileID: "pp-1",
		Capacity:           40,
	}
	require.NoError(t, repo.Create(context.Background(), section))
	require.NotEmpty(t, section.ID)
	require.Equal(t, models.SectionStatusOpen, section.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryListFiltersBySchool(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "course_id", "term_id", "professor_profile_id", "capacity", "status", "created_at", "updated_at",
		"course_code", "course_title", "credits", "school_id", "term_name", "max_credits", "professor_name",
	}).AddRow("sec-1", "crs-1", "term-1", "pp-1", 30, models.SectionStatusOpen, time.Now(), time.Now(),
		"CS101", "Intro to Computing", 3, "school-a", "Fall 2026", 18, "Prof. Adams")

	mock.ExpectQuery("SELECT sec.id, sec.course_id").
		WithArgs("term-1", "school-a").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("term-1", "school-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sections, total, err := repo.List(context.Background(), models.SectionFilter{
		TermID:   "term-1",
		SchoolID: "school-a",
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, sections, 1)
	require.Equal(t, "CS101", sections[0].CourseCode)
	require.Equal(t, "school-a", sections[0].SchoolID)
	require.NoError(t, mock.ExpectationsWereMet())
}
