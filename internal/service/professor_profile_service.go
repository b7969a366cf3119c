package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type professorProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.ProfessorProfile, error)
	FindByUserID(ctx context.Context, userID string) (*models.ProfessorProfile, error)
	Update(ctx context.Context, profile *models.ProfessorProfile) error
}

// UpdateProfessorProfileRequest carries the mutable profile fields.
type UpdateProfessorProfileRequest struct {
	Title string `json:"title" validate:"required,max=100"`
	Bio   string `json:"bio" validate:"max=2000"`
}

// ProfessorProfileService serves professor profile reads and owner-scoped
// updates.
type ProfessorProfileService struct {
	repo      professorProfileRepository
	gate      admissionGate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfessorProfileService constructs a ProfessorProfileService.
func NewProfessorProfileService(repo professorProfileRepository, gate admissionGate, validate *validator.Validate, logger *zap.Logger) *ProfessorProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfessorProfileService{repo: repo, gate: gate, validator: validate, logger: logger}
}

// Find returns a profile when the actor may view it.
func (s *ProfessorProfileService) Find(ctx context.Context, actor models.Actor, id string) (*models.ProfessorProfile, error) {
	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.gate.Can(ctx, actor, models.ActionView, models.ResourceProfessorProfile, &models.ResourceRef{ID: profile.ID, OwnerUserID: profile.UserID})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}
	return profile, nil
}

// FindOwn returns the profile belonging to the acting user.
func (s *ProfessorProfileService) FindOwn(ctx context.Context, actor models.Actor) (*models.ProfessorProfile, error) {
	profile, err := s.repo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor profile")
	}
	return profile, nil
}

// Update applies title and bio changes when the actor owns the profile or
// holds an administrative role over its school.
func (s *ProfessorProfileService) Update(ctx context.Context, actor models.Actor, id string, req UpdateProfessorProfileRequest) (*models.ProfessorProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.gate.Can(ctx, actor, models.ActionUpdate, models.ResourceProfessorProfile, &models.ResourceRef{ID: profile.ID, OwnerUserID: profile.UserID})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}

	profile.Title = req.Title
	profile.Bio = req.Bio
	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update professor profile")
	}
	return profile, nil
}

func (s *ProfessorProfileService) load(ctx context.Context, id string) (*models.ProfessorProfile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor profile")
	}
	return profile, nil
}
