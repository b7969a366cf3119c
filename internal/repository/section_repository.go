package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// SectionRepository handles persistence of course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionDetailColumns = `sec.id, sec.course_id, sec.term_id, sec.professor_profile_id, sec.capacity, sec.status, sec.created_at, sec.updated_at,
        c.code AS course_code, c.title AS course_title, c.credits, d.school_id,
        t.name AS term_name, t.max_credits, COALESCE(u.full_name, '') AS professor_name`

const sectionDetailJoins = `FROM sections sec
JOIN courses c ON c.id = sec.course_id
JOIN departments d ON d.id = c.department_id
JOIN terms t ON t.id = sec.term_id
LEFT JOIN professor_profiles p ON p.id = sec.professor_profile_id
LEFT JOIN users u ON u.id = p.user_id`

// List returns section details filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("d.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("sec.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"course_code": "c.code",
		"capacity":    "sec.capacity",
		"created_at":  "sec.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "course_code"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		sectionDetailColumns, sectionDetailJoins+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", sectionDetailJoins+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, term_id, professor_profile_id, capacity, status, created_at, updated_at FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with the course, term and ownership
// fields admission reads.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE sec.id = $1", sectionDetailColumns, sectionDetailJoins)
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockForUpdateTx locks the section row for the duration of the caller's
// transaction, serializing capacity-check-and-insert per section.
func (r *SectionRepository) LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, term_id, professor_profile_id, capacity, status, created_at, updated_at FROM sections WHERE id = $1 FOR UPDATE`
	var section models.Section
	if err := tx.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// Create persists a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	if section.Status == "" {
		section.Status = models.SectionStatusOpen
	}
	const query = `INSERT INTO sections (id, course_id, term_id, professor_profile_id, capacity, status)
        VALUES (:id, :course_id, :term_id, :professor_profile_id, :capacity, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update modifies an existing section.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	const query = `UPDATE sections SET course_id = :course_id, term_id = :term_id, professor_profile_id = :professor_profile_id,
        capacity = :capacity, status = :status, updated_at = NOW() WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// Delete removes a section.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sections WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}
