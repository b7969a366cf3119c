package models

import "time"

// Term models an academic period. It owns the credit ceiling applied to
// every registration placed against its sections.
type Term struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"school_id"`
	Name       string    `db:"name" json:"name"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
	EndDate    time.Time `db:"end_date" json:"end_date"`
	MaxCredits int       `db:"max_credits" json:"max_credits"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	SchoolID  string
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
