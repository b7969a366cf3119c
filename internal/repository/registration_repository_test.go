package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

func newRegistrationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRegistrationRepositoryCountActiveBySection(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE section_id = $1 AND state = $2")).
		WithArgs("sec-1", models.RegistrationStateActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountActiveBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Equal(t, 12, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTotalCredits(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(c.credits), 0)")).
		WithArgs("stu-1", "term-1", models.RegistrationStateActive).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(15))

	total, err := repo.TotalCredits(context.Background(), "stu-1", "term-1")
	require.NoError(t, err)
	require.Equal(t, 15, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTotalCreditsEmptyTerm(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(c.credits), 0)")).
		WithArgs("stu-1", "term-1", models.RegistrationStateActive).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	total, err := repo.TotalCredits(context.Background(), "stu-1", "term-1")
	require.NoError(t, err)
	require.Equal(t, 0, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryLockStudentTerm(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))")).
		WithArgs("stu-1", "term-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.LockStudentTerm(context.Background(), tx, "stu-1", "term-1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateTx(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WithArgs(sqlmock.AnyArg(), "sec-1", "stu-1", "term-1", models.RegistrationStateActive, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	registration := &models.Registration{
		SectionID: "sec-1",
		StudentID: "stu-1",
		TermID:    "term-1",
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, registration))
	require.NotEmpty(t, registration.ID)
	require.Equal(t, models.RegistrationStateActive, registration.State)
	require.False(t, registration.RegisteredAt.IsZero())
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUpdateState(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	droppedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET state = $2, dropped_at = $3 WHERE id = $1")).
		WithArgs("reg-1", models.RegistrationStateDropped, droppedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateState(context.Background(), "reg-1", models.RegistrationStateDropped, &droppedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "section_id", "student_id", "term_id", "state", "registered_at", "dropped_at",
		"student_name", "course_code", "course_title", "credits", "term_name",
	}).AddRow("reg-1", "sec-1", "stu-1", "term-1", models.RegistrationStateActive, time.Now(), nil,
		"Dana Smith", "CS101", "Intro to Computing", 3, "Fall 2026")

	mock.ExpectQuery("SELECT g.id, g.section_id").
		WithArgs("stu-1", models.RegistrationStateActive).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("stu-1", models.RegistrationStateActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	registrations, total, err := repo.List(context.Background(), models.RegistrationFilter{
		StudentID: "stu-1",
		State:     models.RegistrationStateActive,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, registrations, 1)
	require.Equal(t, "CS101", registrations[0].CourseCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListActiveSlots(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	rows := sqlmock.NewRows([]string{"slot_id", "section_id", "course_code", "course_title", "day_of_week", "start_minute", "end_minute"}).
		AddRow("slot-1", "sec-2", "MATH101", "Calculus I", 1, 600, 675)
	mock.ExpectQuery("SELECT sl.id AS slot_id").
		WithArgs("stu-1", "term-1", models.RegistrationStateActive).
		WillReturnRows(rows)

	slots, err := repo.ListActiveSlots(context.Background(), "stu-1", "term-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, "MATH101", slots[0].CourseCode)
	require.Equal(t, 600, slots[0].StartMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}
