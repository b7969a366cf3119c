package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/export"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	Delete(ctx context.Context, id string) error
}

type sectionRegistrationReader interface {
	CountActiveBySection(ctx context.Context, sectionID string) (int, error)
	ListActiveDetailBySection(ctx context.Context, sectionID string) ([]models.RegistrationDetail, error)
}

type professorProfileReader interface {
	FindByID(ctx context.Context, id string) (*models.ProfessorProfile, error)
}

type sectionSlotReader interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error)
}

// CreateSectionRequest describes payload for creating a section.
type CreateSectionRequest struct {
	CourseID           string `json:"course_id" validate:"required"`
	TermID             string `json:"term_id" validate:"required"`
	ProfessorProfileID string `json:"professor_profile_id" validate:"required"`
	Capacity           int    `json:"capacity" validate:"required,min=1"`
}

// UpdateSectionRequest updates an existing section.
type UpdateSectionRequest struct {
	ProfessorProfileID string               `json:"professor_profile_id" validate:"required"`
	Capacity           int                  `json:"capacity" validate:"required,min=1"`
	Status             models.SectionStatus `json:"status" validate:"required,oneof=OPEN CLOSED CANCELLED"`
}

// SectionWithSlots pairs a section detail with its weekly meeting
// pattern.
type SectionWithSlots struct {
	models.SectionDetail
	Slots []models.ScheduleSlot `json:"slots"`
}

// RosterExportResult bundles rendered roster bytes with content metadata.
type RosterExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// SectionService coordinates section administration and the advisory
// seat-availability reads. Every mutation passes through the
// authorization gate.
type SectionService struct {
	sections      sectionRepository
	registrations sectionRegistrationReader
	profiles      professorProfileReader
	slots         sectionSlotReader
	resolver      schoolResolver
	gate          admissionGate
	cache         *CacheService
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	cacheTTL      time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewSectionService constructs SectionService. Cache may be nil.
func NewSectionService(
	sections sectionRepository,
	registrations sectionRegistrationReader,
	profiles professorProfileReader,
	slots sectionSlotReader,
	resolver schoolResolver,
	gate admissionGate,
	cache *CacheService,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{
		sections:      sections,
		registrations: registrations,
		profiles:      profiles,
		slots:         slots,
		resolver:      resolver,
		gate:          gate,
		cache:         cache,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		cacheTTL:      cacheTTL,
		validator:     validate,
		logger:        logger,
	}
}

// List returns sections with pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.sections.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return sections, pagination, nil
}

// Find returns a section with its course, term and professor context.
func (s *SectionService) Find(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.sections.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// FindWithSlots returns a section detail along with its schedule slots.
func (s *SectionService) FindWithSlots(ctx context.Context, id string) (*SectionWithSlots, error) {
	detail, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListBySection(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section slots")
	}
	return &SectionWithSlots{SectionDetail: *detail, Slots: slots}, nil
}

// Create inserts a new section after authorizing against the school that
// owns the course.
func (s *SectionService) Create(ctx context.Context, actor models.Actor, req CreateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	schoolID, err := s.resolver.OwningSchool(ctx, models.ResourceCourse, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course school")
	}
	allowed, err := s.gate.Can(ctx, actor, models.ActionCreate, models.ResourceSection, &models.ResourceRef{SchoolID: schoolID})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}

	section := &models.Section{
		CourseID:           req.CourseID,
		TermID:             req.TermID,
		ProfessorProfileID: req.ProfessorProfileID,
		Capacity:           req.Capacity,
		Status:             models.SectionStatusOpen,
	}
	if err := s.sections.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return s.Find(ctx, section.ID)
}

// Update modifies capacity, professor or status of a section.
func (s *SectionService) Update(ctx context.Context, actor models.Actor, id string, req UpdateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	existing, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	allowed, err := s.gate.Can(ctx, actor, models.ActionUpdate, models.ResourceSection, &models.ResourceRef{ID: id})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}

	updated := *existing
	updated.ProfessorProfileID = req.ProfessorProfileID
	updated.Capacity = req.Capacity
	updated.Status = req.Status
	if err := s.sections.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}

	s.invalidateAvailability(ctx, id)
	return s.Find(ctx, id)
}

// Delete removes a section that has no active registrations.
func (s *SectionService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if _, err := s.sections.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	allowed, err := s.gate.Can(ctx, actor, models.ActionDelete, models.ResourceSection, &models.ResourceRef{ID: id})
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.ErrForbidden
	}

	enrolled, err := s.registrations.CountActiveBySection(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}
	if enrolled > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "section has active registrations")
	}

	if err := s.sections.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	s.invalidateAvailability(ctx, id)
	return nil
}

// Availability returns the advisory seat snapshot for a section, served
// from cache when fresh. The admission path recomputes enrollment under
// lock and never reads this value.
func (s *SectionService) Availability(ctx context.Context, id string) (*models.SectionAvailability, error) {
	key := availabilityCacheKey(id)
	if s.cache != nil {
		var cached models.SectionAvailability
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	detail, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.registrations.CountActiveBySection(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}

	availability := &models.SectionAvailability{
		SectionID:  id,
		Capacity:   detail.Capacity,
		Enrolled:   enrolled,
		SeatsLeft:  detail.Capacity - enrolled,
		Status:     detail.Status,
		ComputedAt: time.Now().UTC(),
	}
	if availability.SeatsLeft < 0 {
		availability.SeatsLeft = 0
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, availability, s.cacheTTL)
	}
	return availability, nil
}

// ExportRoster renders the active roster of a section as CSV or PDF.
// Admin-tier actors may export any roster; a professor may export only
// sections assigned to them.
func (s *SectionService) ExportRoster(ctx context.Context, actor models.Actor, id, format string) (*RosterExportResult, error) {
	detail, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.mayExportRoster(ctx, actor, detail)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}

	roster, err := s.registrations.ListActiveDetailBySection(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Course", "Term", "Credits", "Registered At"},
	}
	for _, row := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":       row.StudentName,
			"Course":        fmt.Sprintf("%s %s", row.CourseCode, row.CourseTitle),
			"Term":          row.TermName,
			"Credits":       fmt.Sprintf("%d", row.Credits),
			"Registered At": row.RegisteredAt.Format("2006-01-02"),
		})
	}

	title := fmt.Sprintf("%s roster", detail.CourseCode)
	switch strings.ToLower(format) {
	case "pdf":
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return &RosterExportResult{Content: content, ContentType: "application/pdf", Filename: fmt.Sprintf("roster-%s.pdf", id)}, nil
	case "", "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return &RosterExportResult{Content: content, ContentType: "text/csv", Filename: fmt.Sprintf("roster-%s.csv", id)}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *SectionService) mayExportRoster(ctx context.Context, actor models.Actor, detail *models.SectionDetail) (bool, error) {
	if s.gate.Allows(actor.Role, models.ActionViewAny, models.ResourceRegistration) && actor.Role != models.RoleStudent {
		return s.gate.Can(ctx, actor, models.ActionView, models.ResourceSection, &models.ResourceRef{ID: detail.ID, SchoolID: detail.SchoolID})
	}
	if actor.Role == models.RoleProfessor && detail.ProfessorProfileID != "" {
		profile, err := s.profiles.FindByID(ctx, detail.ProfessorProfileID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor profile")
		}
		return profile.UserID == actor.UserID, nil
	}
	return false, nil
}

func (s *SectionService) invalidateAvailability(ctx context.Context, sectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, availabilityCacheKey(sectionID)); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}

func availabilityCacheKey(sectionID string) string {
	return "availability:section:" + sectionID
}
