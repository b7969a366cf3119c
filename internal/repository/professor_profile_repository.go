package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

const professorProfileColumns = `id, user_id, department_id, title, bio, created_at, updated_at`

// ProfessorProfileRepository handles professor profile persistence.
type ProfessorProfileRepository struct {
	db *sqlx.DB
}

// NewProfessorProfileRepository constructs the repository.
func NewProfessorProfileRepository(db *sqlx.DB) *ProfessorProfileRepository {
	return &ProfessorProfileRepository{db: db}
}

// FindByID returns a profile by its ID.
func (r *ProfessorProfileRepository) FindByID(ctx context.Context, id string) (*models.ProfessorProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM professor_profiles WHERE id = $1`, professorProfileColumns)
	var profile models.ProfessorProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByUserID returns the profile owned by the given user account.
func (r *ProfessorProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.ProfessorProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM professor_profiles WHERE user_id = $1`, professorProfileColumns)
	var profile models.ProfessorProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update persists mutable profile fields.
func (r *ProfessorProfileRepository) Update(ctx context.Context, profile *models.ProfessorProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE professor_profiles SET title = :title, bio = :bio, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update professor profile: %w", err)
	}
	return nil
}
