package models

import "time"

// Course is a catalog entry owned by a department. Credits feed the
// per-term credit ledger.
type Course struct {
	ID           string    `db:"id" json:"id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	MajorID      *string   `db:"major_id" json:"major_id,omitempty"`
	Code         string    `db:"code" json:"code"`
	Title        string    `db:"title" json:"title"`
	Credits      int       `db:"credits" json:"credits"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	DepartmentID string
	MajorID      string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
