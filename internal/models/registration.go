package models

import "time"

// RegistrationState represents the lifecycle of a registration.
// DROPPED is terminal; re-registering creates a new record so the
// enrollment history is preserved.
type RegistrationState string

const (
	RegistrationStateActive  RegistrationState = "ACTIVE"
	RegistrationStateDropped RegistrationState = "DROPPED"
)

// ReasonCode is the stable outcome vocabulary returned by the admission
// engine.
type ReasonCode string

const (
	ReasonOK                  ReasonCode = "OK"
	ReasonUnauthorized        ReasonCode = "UNAUTHORIZED"
	ReasonSectionFull         ReasonCode = "SECTION_FULL"
	ReasonScheduleConflict    ReasonCode = "SCHEDULE_CONFLICT"
	ReasonCreditLimitExceeded ReasonCode = "CREDIT_LIMIT_EXCEEDED"
)

// Registration captures a student's seat in a section. TermID is
// denormalised from the section at insert time.
type Registration struct {
	ID           string            `db:"id" json:"id"`
	SectionID    string            `db:"section_id" json:"section_id"`
	StudentID    string            `db:"student_id" json:"student_id"`
	TermID       string            `db:"term_id" json:"term_id"`
	State        RegistrationState `db:"state" json:"state"`
	RegisteredAt time.Time         `db:"registered_at" json:"registered_at"`
	DroppedAt    *time.Time        `db:"dropped_at" json:"dropped_at,omitempty"`
}

// RegistrationDetail enriches Registration with course and student info.
type RegistrationDetail struct {
	Registration
	StudentName string `db:"student_name" json:"student_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	Credits     int    `db:"credits" json:"credits"`
	TermName    string `db:"term_name" json:"term_name"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID string
	SectionID string
	TermID    string
	State     RegistrationState
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
