package models

import "time"

// ProfessorProfile binds a user account with the PROFESSOR role to a
// department. OwnerUserID for authorization purposes is UserID.
type ProfessorProfile struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Title        string    `db:"title" json:"title"`
	Bio          string    `db:"bio" json:"bio"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
