package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// RegistrationRepository handles persistence of registrations and the
// aggregate queries the admission checks run. The Tx variants run inside
// the caller's transaction so capacity and credit reads stay serialized
// with the insert.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations g
LEFT JOIN users u ON u.id = g.student_id
LEFT JOIN sections sec ON sec.id = g.section_id
LEFT JOIN courses c ON c.id = sec.course_id
LEFT JOIN terms t ON t.id = g.term_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("g.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("g.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("g.state = $%d", len(args)+1))
		args = append(args, filter.State)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"registered_at": "g.registered_at",
		"student_name":  "u.full_name",
		"course_code":   "c.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "registered_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "g.registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT g.id, g.section_id, g.student_id, g.term_id, g.state, g.registered_at, g.dropped_at,
        u.full_name AS student_name, c.code AS course_code, c.title AS course_title, c.credits, t.name AS term_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	const query = `SELECT id, section_id, student_id, term_id, state, registered_at, dropped_at FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindDetailByID returns a registration with contextual info.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	const query = `SELECT g.id, g.section_id, g.student_id, g.term_id, g.state, g.registered_at, g.dropped_at,
        u.full_name AS student_name, c.code AS course_code, c.title AS course_title, c.credits, t.name AS term_name
        FROM registrations g
        LEFT JOIN users u ON u.id = g.student_id
        LEFT JOIN sections sec ON sec.id = g.section_id
        LEFT JOIN courses c ON c.id = sec.course_id
        LEFT JOIN terms t ON t.id = g.term_id
        WHERE g.id = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockStudentTerm serializes concurrent admission attempts by the same
// student within a term. The advisory lock is released when the
// surrounding transaction commits or rolls back.
func (r *RegistrationRepository) LockStudentTerm(ctx context.Context, tx *sqlx.Tx, studentID, termID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`
	if _, err := tx.ExecContext(ctx, query, studentID, termID); err != nil {
		return fmt.Errorf("lock student term: %w", err)
	}
	return nil
}

// CountActiveBySection returns the current active enrollment for a section.
func (r *RegistrationRepository) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	return countActiveBySection(ctx, r.db, sectionID)
}

// CountActiveBySectionTx is the transactional variant used while the
// section row is locked.
func (r *RegistrationRepository) CountActiveBySectionTx(ctx context.Context, tx *sqlx.Tx, sectionID string) (int, error) {
	return countActiveBySection(ctx, tx, sectionID)
}

func countActiveBySection(ctx context.Context, q sqlx.QueryerContext, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE section_id = $1 AND state = $2`
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, sectionID, models.RegistrationStateActive); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// TotalCredits recomputes the student's enrolled credit hours for a term
// from current state. No running counter is persisted.
func (r *RegistrationRepository) TotalCredits(ctx context.Context, studentID, termID string) (int, error) {
	return totalCredits(ctx, r.db, studentID, termID)
}

// TotalCreditsTx is the transactional variant used under the student/term lock.
func (r *RegistrationRepository) TotalCreditsTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (int, error) {
	return totalCredits(ctx, tx, studentID, termID)
}

func totalCredits(ctx context.Context, q sqlx.QueryerContext, studentID, termID string) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credits), 0)
        FROM registrations g
        JOIN sections sec ON sec.id = g.section_id
        JOIN courses c ON c.id = sec.course_id
        WHERE g.student_id = $1 AND g.term_id = $2 AND g.state = $3`
	var total int
	if err := sqlx.GetContext(ctx, q, &total, query, studentID, termID, models.RegistrationStateActive); err != nil {
		return 0, fmt.Errorf("sum registered credits: %w", err)
	}
	return total, nil
}

// ListActiveSlots returns the schedule slots of every active registration
// the student holds in the term, joined with section and course info for
// conflict messaging.
func (r *RegistrationRepository) ListActiveSlots(ctx context.Context, studentID, termID string) ([]models.RegisteredSlot, error) {
	return listActiveSlots(ctx, r.db, studentID, termID)
}

// ListActiveSlotsTx is the transactional variant.
func (r *RegistrationRepository) ListActiveSlotsTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) ([]models.RegisteredSlot, error) {
	return listActiveSlots(ctx, tx, studentID, termID)
}

func listActiveSlots(ctx context.Context, q sqlx.QueryerContext, studentID, termID string) ([]models.RegisteredSlot, error) {
	const query = `SELECT sl.id AS slot_id, g.section_id, c.code AS course_code, c.title AS course_title,
        sl.day_of_week, sl.start_minute, sl.end_minute
        FROM registrations g
        JOIN sections sec ON sec.id = g.section_id
        JOIN courses c ON c.id = sec.course_id
        JOIN schedule_slots sl ON sl.section_id = g.section_id
        WHERE g.student_id = $1 AND g.term_id = $2 AND g.state = $3`
	var slots []models.RegisteredSlot
	if err := sqlx.SelectContext(ctx, q, &slots, query, studentID, termID, models.RegistrationStateActive); err != nil {
		return nil, fmt.Errorf("list registered slots: %w", err)
	}
	return slots, nil
}

// CreateTx persists a new registration inside the admission transaction.
func (r *RegistrationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.RegisteredAt.IsZero() {
		registration.RegisteredAt = time.Now().UTC()
	}
	if registration.State == "" {
		registration.State = models.RegistrationStateActive
	}
	const query = `INSERT INTO registrations (id, section_id, student_id, term_id, state, registered_at, dropped_at)
        VALUES (:id, :section_id, :student_id, :term_id, :state, :registered_at, :dropped_at)`
	if _, err := tx.NamedExecContext(ctx, query, registration); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// UpdateState updates state and dropped_at for a registration.
func (r *RegistrationRepository) UpdateState(ctx context.Context, id string, state models.RegistrationState, droppedAt *time.Time) error {
	const query = `UPDATE registrations SET state = $2, dropped_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, state, droppedAt); err != nil {
		return fmt.Errorf("update registration state: %w", err)
	}
	return nil
}

// ListActiveDetailBySection returns the active roster of a section.
func (r *RegistrationRepository) ListActiveDetailBySection(ctx context.Context, sectionID string) ([]models.RegistrationDetail, error) {
	const query = `SELECT g.id, g.section_id, g.student_id, g.term_id, g.state, g.registered_at, g.dropped_at,
        u.full_name AS student_name, c.code AS course_code, c.title AS course_title, c.credits, t.name AS term_name
        FROM registrations g
        LEFT JOIN users u ON u.id = g.student_id
        LEFT JOIN sections sec ON sec.id = g.section_id
        LEFT JOIN courses c ON c.id = sec.course_id
        LEFT JOIN terms t ON t.id = g.term_id
        WHERE g.section_id = $1 AND g.state = $2
        ORDER BY u.full_name ASC`
	var roster []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &roster, query, sectionID, models.RegistrationStateActive); err != nil {
		return nil, fmt.Errorf("list section roster: %w", err)
	}
	return roster, nil
}
