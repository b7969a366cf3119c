package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type admissionSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Section, error)
}

type admissionSlotRepository interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error)
}

type admissionRegistrationRepository interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	LockStudentTerm(ctx context.Context, tx *sqlx.Tx, studentID, termID string) error
	CountActiveBySection(ctx context.Context, sectionID string) (int, error)
	CountActiveBySectionTx(ctx context.Context, tx *sqlx.Tx, sectionID string) (int, error)
	TotalCredits(ctx context.Context, studentID, termID string) (int, error)
	TotalCreditsTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (int, error)
	ListActiveSlots(ctx context.Context, studentID, termID string) ([]models.RegisteredSlot, error)
	ListActiveSlotsTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) ([]models.RegisteredSlot, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, registration *models.Registration) error
	UpdateState(ctx context.Context, id string, state models.RegistrationState, droppedAt *time.Time) error
}

type admissionUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type admissionGate interface {
	Can(ctx context.Context, actor models.Actor, action models.Action, kind models.ResourceKind, ref *models.ResourceRef) (bool, error)
	Allows(role models.UserRole, action models.Action, kind models.ResourceKind) bool
}

type admissionTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// RegisterRequest describes a registration attempt.
type RegisterRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// AdmissionDecision is the typed outcome of a registration attempt. A
// rejected attempt is a normal result carrying a stable reason code, not
// an error.
type AdmissionDecision struct {
	Reason       models.ReasonCode          `json:"reason"`
	Message      string                     `json:"message"`
	Registration *models.RegistrationDetail `json:"registration,omitempty"`
	Conflict     *models.SlotConflict       `json:"conflict,omitempty"`
}

// Allowed reports whether the attempt passed every check.
func (d *AdmissionDecision) Allowed() bool {
	return d != nil && d.Reason == models.ReasonOK
}

// AdmissionService gates every registration attempt: authorization
// first, then capacity, schedule conflict and credit limit, in that
// order, returning on the first failing check. The checks and the
// insert run inside one transaction; the section row lock serializes
// capacity per section and an advisory lock serializes the credit
// ledger per (student, term).
type AdmissionService struct {
	sections      admissionSectionRepository
	slots         admissionSlotRepository
	registrations admissionRegistrationRepository
	users         admissionUserRepository
	gate          admissionGate
	txProvider    admissionTxProvider
	metrics       *MetricsService
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAdmissionService constructs AdmissionService. Metrics and cache may
// be nil.
func NewAdmissionService(
	sections admissionSectionRepository,
	slots admissionSlotRepository,
	registrations admissionRegistrationRepository,
	users admissionUserRepository,
	gate admissionGate,
	txProvider admissionTxProvider,
	metrics *MetricsService,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		sections:      sections,
		slots:         slots,
		registrations: registrations,
		users:         users,
		gate:          gate,
		txProvider:    txProvider,
		metrics:       metrics,
		cache:         cache,
		validator:     validate,
		logger:        logger,
	}
}

// AttemptRegister runs the full admission pipeline and, when every check
// passes, persists a new active registration.
func (s *AdmissionService) AttemptRegister(ctx context.Context, actor models.Actor, req RegisterRequest) (*AdmissionDecision, error) {
	decision, err := s.attemptRegister(ctx, actor, req)
	if decision != nil && s.metrics != nil {
		s.metrics.RecordAdmissionOutcome(decision.Reason)
	}
	return decision, err
}

func (s *AdmissionService) attemptRegister(ctx context.Context, actor models.Actor, req RegisterRequest) (*AdmissionDecision, error) {
	student, detail, candidate, err := s.loadAttempt(ctx, req)
	if err != nil {
		return nil, err
	}

	allowed, err := s.authorizeCreate(ctx, actor, student, detail)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return unauthorizedDecision(), nil
	}

	tx, err := s.txProvider.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin admission transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	locked, err := s.sections.LockForUpdateTx(ctx, tx, detail.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrIntegrity, "section disappeared during admission")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock section")
	}
	if err := s.registrations.LockStudentTerm(ctx, tx, student.ID, detail.TermID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student term")
	}

	enrolled, err := s.registrations.CountActiveBySectionTx(ctx, tx, detail.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}
	registered, err := s.registrations.ListActiveSlotsTx(ctx, tx, student.ID, detail.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registered slots")
	}
	total, err := s.registrations.TotalCreditsTx(ctx, tx, student.ID, detail.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total credits")
	}

	if rejected := evaluateAdmission(locked.Capacity, enrolled, candidate, registered, total, detail.Credits, detail.MaxCredits); rejected != nil {
		return rejected, nil
	}

	registration := &models.Registration{
		SectionID: detail.ID,
		StudentID: student.ID,
		TermID:    detail.TermID,
		State:     models.RegistrationStateActive,
	}
	if err := s.registrations.CreateTx(ctx, tx, registration); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit admission")
	}

	s.invalidateAvailability(ctx, detail.ID)

	result, err := s.registrations.FindDetailByID(ctx, registration.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration detail")
	}
	return &AdmissionDecision{Reason: models.ReasonOK, Message: "registered", Registration: result}, nil
}

// Preview mirrors the admission checks without locks or inserts so
// clients can show instant feedback. The transactional AttemptRegister
// run remains the sole source of truth.
func (s *AdmissionService) Preview(ctx context.Context, actor models.Actor, req RegisterRequest) (*AdmissionDecision, error) {
	student, detail, candidate, err := s.loadAttempt(ctx, req)
	if err != nil {
		return nil, err
	}

	allowed, err := s.authorizeCreate(ctx, actor, student, detail)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return unauthorizedDecision(), nil
	}

	enrolled, err := s.registrations.CountActiveBySection(ctx, detail.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}
	registered, err := s.registrations.ListActiveSlots(ctx, student.ID, detail.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registered slots")
	}
	total, err := s.registrations.TotalCredits(ctx, student.ID, detail.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total credits")
	}

	if rejected := evaluateAdmission(detail.Capacity, enrolled, candidate, registered, total, detail.Credits, detail.MaxCredits); rejected != nil {
		return rejected, nil
	}
	return &AdmissionDecision{Reason: models.ReasonOK, Message: "registration would be accepted"}, nil
}

// AttemptDrop transitions an active registration to dropped. Dropping
// never re-validates the student's remaining registrations.
func (s *AdmissionService) AttemptDrop(ctx context.Context, actor models.Actor, registrationID string) (*AdmissionDecision, error) {
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	ref := &models.ResourceRef{ID: registration.ID, OwnerUserID: registration.StudentID}
	allowed, err := s.gate.Can(ctx, actor, models.ActionDelete, models.ResourceRegistration, ref)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return unauthorizedDecision(), nil
	}

	if registration.State != models.RegistrationStateActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "registration is not active")
	}

	droppedAt := time.Now().UTC()
	if err := s.registrations.UpdateState(ctx, registrationID, models.RegistrationStateDropped, &droppedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop registration")
	}

	s.invalidateAvailability(ctx, registration.SectionID)

	detail, err := s.registrations.FindDetailByID(ctx, registrationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration detail")
	}
	return &AdmissionDecision{Reason: models.ReasonOK, Message: "dropped", Registration: detail}, nil
}

// List returns registrations visible to the actor. Students only ever
// see their own.
func (s *AdmissionService) List(ctx context.Context, actor models.Actor, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	if !s.gate.Allows(actor.Role, models.ActionViewAny, models.ResourceRegistration) {
		return nil, nil, appErrors.ErrForbidden
	}
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.UserID
	}
	registrations, total, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
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
	return registrations, pagination, nil
}

// loadAttempt validates the payload and loads the student, the section
// detail and the candidate weekly pattern. A section whose ownership
// chain no longer resolves is an integrity failure, not a not-found.
func (s *AdmissionService) loadAttempt(ctx context.Context, req RegisterRequest) (*models.User, *models.SectionDetail, []models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "target user is not a student")
	}
	if !student.Active {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	detail, err := s.sections.FindDetailByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("section ownership chain broken", zap.String("section_id", req.SectionID))
			return nil, nil, nil, appErrors.Clone(appErrors.ErrIntegrity, "section references missing course, department or term")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section detail")
	}
	if detail.Status != models.SectionStatusOpen {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "section is not open for registration")
	}

	candidate, err := s.slots.ListBySection(ctx, req.SectionID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section slots")
	}
	return student, detail, candidate, nil
}

func (s *AdmissionService) authorizeCreate(ctx context.Context, actor models.Actor, student *models.User, detail *models.SectionDetail) (bool, error) {
	ref := &models.ResourceRef{OwnerUserID: student.ID, SchoolID: detail.SchoolID}
	return s.gate.Can(ctx, actor, models.ActionCreate, models.ResourceRegistration, ref)
}

func (s *AdmissionService) invalidateAvailability(ctx context.Context, sectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, availabilityCacheKey(sectionID)); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}

// evaluateAdmission runs the three business checks in their fixed order
// and returns the first rejection, or nil when all pass. Capacity is
// inclusive: a section with capacity N accepts exactly N active
// registrations.
func evaluateAdmission(capacity, enrolled int, candidate []models.ScheduleSlot, registered []models.RegisteredSlot, totalCredits, courseCredits, maxCredits int) *AdmissionDecision {
	if enrolled >= capacity {
		return &AdmissionDecision{Reason: models.ReasonSectionFull, Message: "This section is full"}
	}
	if conflict := FindSlotConflict(candidate, registered); conflict != nil {
		return &AdmissionDecision{
			Reason:   models.ReasonScheduleConflict,
			Message:  fmt.Sprintf("Conflicts with %s on %s %s", conflict.CourseCode, titleDay(conflict.DayOfWeek), conflict.TimeRange()),
			Conflict: conflict,
		}
	}
	if totalCredits+courseCredits > maxCredits {
		return &AdmissionDecision{
			Reason:  models.ReasonCreditLimitExceeded,
			Message: fmt.Sprintf("Would exceed your credit limit of %d", maxCredits),
		}
	}
	return nil
}

func unauthorizedDecision() *AdmissionDecision {
	return &AdmissionDecision{Reason: models.ReasonUnauthorized, Message: "You are not allowed to perform this registration"}
}

func titleDay(day models.DayOfWeek) string {
	lower := strings.ToLower(string(day))
	if lower == "" {
		return ""
	}
	return strings.ToUpper(lower[:1]) + lower[1:]
}
