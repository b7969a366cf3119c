package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// ScopeRepository resolves the owning school of any scoped resource.
// All school-scope derivation in the system goes through this single
// lookup so the chain logic is never duplicated per resource type.
type ScopeRepository struct {
	db *sqlx.DB
}

// NewScopeRepository constructs the repository.
func NewScopeRepository(db *sqlx.DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

var owningSchoolQueries = map[models.ResourceKind]string{
	models.ResourceSchool:     `SELECT id FROM schools WHERE id = $1`,
	models.ResourceDepartment: `SELECT school_id FROM departments WHERE id = $1`,
	models.ResourceTerm:       `SELECT school_id FROM terms WHERE id = $1`,
	models.ResourceBuilding:   `SELECT school_id FROM buildings WHERE id = $1`,
	models.ResourceUser:       `SELECT school_id FROM users WHERE id = $1 AND school_id IS NOT NULL`,
	models.ResourceMajor: `SELECT d.school_id FROM majors m
        JOIN departments d ON d.id = m.department_id WHERE m.id = $1`,
	models.ResourceRoom: `SELECT b.school_id FROM rooms r
        JOIN buildings b ON b.id = r.building_id WHERE r.id = $1`,
	models.ResourceCourse: `SELECT d.school_id FROM courses c
        JOIN departments d ON d.id = c.department_id WHERE c.id = $1`,
	models.ResourceSection: `SELECT d.school_id FROM sections sec
        JOIN courses c ON c.id = sec.course_id
        JOIN departments d ON d.id = c.department_id WHERE sec.id = $1`,
	models.ResourceScheduleSlot: `SELECT d.school_id FROM schedule_slots sl
        JOIN sections sec ON sec.id = sl.section_id
        JOIN courses c ON c.id = sec.course_id
        JOIN departments d ON d.id = c.department_id WHERE sl.id = $1`,
	models.ResourceRegistration: `SELECT d.school_id FROM registrations g
        JOIN sections sec ON sec.id = g.section_id
        JOIN courses c ON c.id = sec.course_id
        JOIN departments d ON d.id = c.department_id WHERE g.id = $1`,
	models.ResourceProfessorProfile: `SELECT d.school_id FROM professor_profiles p
        JOIN departments d ON d.id = p.department_id WHERE p.id = $1`,
}

// OwningSchool walks the ownership chain of the resource and returns the
// school that owns it. sql.ErrNoRows is returned unchanged when any link
// in the chain is missing; callers treat that as an integrity failure,
// never as permission.
func (r *ScopeRepository) OwningSchool(ctx context.Context, kind models.ResourceKind, id string) (string, error) {
	query, ok := owningSchoolQueries[kind]
	if !ok {
		return "", fmt.Errorf("no ownership chain for resource kind %s", kind)
	}
	var schoolID string
	if err := r.db.GetContext(ctx, &schoolID, query, id); err != nil {
		return "", err
	}
	return schoolID, nil
}
