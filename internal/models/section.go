package models

import "time"

// SectionStatus represents the lifecycle of a section offering.
type SectionStatus string

// Possible section statuses.
const (
	SectionStatusOpen      SectionStatus = "OPEN"
	SectionStatusClosed    SectionStatus = "CLOSED"
	SectionStatusCancelled SectionStatus = "CANCELLED"
)

// Section is a concrete offering of a course within a term. Its owning
// school is resolved transitively: section -> course -> department -> school.
type Section struct {
	ID                 string        `db:"id" json:"id"`
	CourseID           string        `db:"course_id" json:"course_id"`
	TermID             string        `db:"term_id" json:"term_id"`
	ProfessorProfileID string        `db:"professor_profile_id" json:"professor_profile_id"`
	Capacity           int           `db:"capacity" json:"capacity"`
	Status             SectionStatus `db:"status" json:"status"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with the course, term and ownership
// fields the admission checks read.
type SectionDetail struct {
	Section
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseTitle   string `db:"course_title" json:"course_title"`
	Credits       int    `db:"credits" json:"credits"`
	SchoolID      string `db:"school_id" json:"school_id"`
	TermName      string `db:"term_name" json:"term_name"`
	MaxCredits    int    `db:"max_credits" json:"max_credits"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
}

// SectionFilter describes query params for listing sections.
type SectionFilter struct {
	CourseID  string
	TermID    string
	SchoolID  string
	Status    SectionStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SectionAvailability is the advisory seat snapshot served to clients.
// The transactional admission path never reads it.
type SectionAvailability struct {
	SectionID  string        `json:"section_id"`
	Capacity   int           `json:"capacity"`
	Enrolled   int           `json:"enrolled"`
	SeatsLeft  int           `json:"seats_left"`
	Status     SectionStatus `json:"status"`
	ComputedAt time.Time     `json:"computed_at"`
}
