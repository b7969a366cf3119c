package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type mockAdmissionSections struct {
	section *models.Section
	detail  *models.SectionDetail
}

func (m *mockAdmissionSections) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if m.section == nil || m.section.ID != id {
		return nil, sql.ErrNoRows
	}
	s := *m.section
	return &s, nil
}

func (m *mockAdmissionSections) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	if m.detail == nil || m.detail.ID != id {
		return nil, sql.ErrNoRows
	}
	d := *m.detail
	return &d, nil
}

func (m *mockAdmissionSections) LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Section, error) {
	return m.FindByID(ctx, id)
}

type mockAdmissionSlots struct {
	slots []models.ScheduleSlot
}

func (m *mockAdmissionSlots) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	return m.slots, nil
}

type mockAdmissionRegs struct {
	enrolled     int
	totalCredits int
	active       []models.RegisteredSlot
	created      *models.Registration
	registration *models.Registration
	stateChanges map[string]models.RegistrationState
	locked       bool
}

func (m *mockAdmissionRegs) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAdmissionRegs) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if m.registration == nil || m.registration.ID != id {
		return nil, sql.ErrNoRows
	}
	r := *m.registration
	return &r, nil
}

func (m *mockAdmissionRegs) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	if m.created != nil && m.created.ID == id {
		return &models.RegistrationDetail{Registration: *m.created}, nil
	}
	if m.registration != nil && m.registration.ID == id {
		return &models.RegistrationDetail{Registration: *m.registration}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdmissionRegs) LockStudentTerm(ctx context.Context, tx *sqlx.Tx, studentID, termID string) error {
	m.locked = true
	return nil
}

func (m *mockAdmissionRegs) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	return m.enrolled, nil
}

func (m *mockAdmissionRegs) CountActiveBySectionTx(ctx context.Context, tx *sqlx.Tx, sectionID string) (int, error) {
	return m.enrolled, nil
}

func (m *mockAdmissionRegs) TotalCredits(ctx context.Context, studentID, termID string) (int, error) {
	return m.totalCredits, nil
}

func (m *mockAdmissionRegs) TotalCreditsTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (int, error) {
	return m.totalCredits, nil
}

func (m *mockAdmissionRegs) ListActiveSlots(ctx context.Context, studentID, termID string) ([]models.RegisteredSlot, error) {
	return m.active, nil
}

func (m *mockAdmissionRegs) ListActiveSlotsTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) ([]models.RegisteredSlot, error) {
	return m.active, nil
}

func (m *mockAdmissionRegs) CreateTx(ctx context.Context, tx *sqlx.Tx, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = "new-reg"
	}
	m.created = registration
	return nil
}

func (m *mockAdmissionRegs) UpdateState(ctx context.Context, id string, state models.RegistrationState, droppedAt *time.Time) error {
	if m.stateChanges == nil {
		m.stateChanges = make(map[string]models.RegistrationState)
	}
	m.stateChanges[id] = state
	return nil
}

type mockAdmissionUsers struct {
	users map[string]*models.User
}

func (m *mockAdmissionUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type stubGate struct {
	allow bool
}

func (g *stubGate) Can(ctx context.Context, actor models.Actor, action models.Action, kind models.ResourceKind, ref *models.ResourceRef) (bool, error) {
	return g.allow, nil
}

func (g *stubGate) Allows(role models.UserRole, action models.Action, kind models.ResourceKind) bool {
	return g.allow
}

type sqlmockTxProvider struct {
	db *sqlx.DB
}

func (p *sqlmockTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func newAdmissionTxProvider(t *testing.T) (*sqlmockTxProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlmockTxProvider{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func openSectionFixture() (*mockAdmissionSections, *mockAdmissionUsers) {
	sections := &mockAdmissionSections{
		section: &models.Section{ID: "sec-1", CourseID: "crs-1", TermID: "term-1", Capacity: 30, Status: models.SectionStatusOpen},
		detail: &models.SectionDetail{
			Section:     models.Section{ID: "sec-1", CourseID: "crs-1", TermID: "term-1", Capacity: 30, Status: models.SectionStatusOpen},
			CourseCode:  "CS101",
			CourseTitle: "Intro to Computing",
			Credits:     3,
			SchoolID:    "school-a",
			MaxCredits:  18,
		},
	}
	users := &mockAdmissionUsers{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Role: models.RoleStudent, Active: true},
	}}
	return sections, users
}

func newAdmissionService(t *testing.T, sections *mockAdmissionSections, users *mockAdmissionUsers, regs *mockAdmissionRegs, gate admissionGate, slots []models.ScheduleSlot) (*AdmissionService, sqlmock.Sqlmock) {
	txProvider, mock := newAdmissionTxProvider(t)
	svc := NewAdmissionService(sections, &mockAdmissionSlots{slots: slots}, regs, users, gate, txProvider, nil, nil, nil, zap.NewNop())
	return svc, mock
}

func TestAttemptRegisterSuccess(t *testing.T) {
	sections, users := openSectionFixture()
	regs := &mockAdmissionRegs{enrolled: 10, totalCredits: 9}
	svc, mock := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	decision, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	require.True(t, decision.Allowed())
	assert.Equal(t, models.ReasonOK, decision.Reason)
	require.NotNil(t, regs.created)
	assert.Equal(t, "sec-1", regs.created.SectionID)
	assert.Equal(t, "term-1", regs.created.TermID)
	assert.Equal(t, models.RegistrationStateActive, regs.created.State)
	assert.True(t, regs.locked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRegisterUnauthorized(t *testing.T) {
	sections, users := openSectionFixture()
	regs := &mockAdmissionRegs{}
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: false}, nil)

	decision, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-2", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonUnauthorized, decision.Reason)
	assert.Nil(t, regs.created)
}

func TestAttemptRegisterSectionFull(t *testing.T) {
	sections, users := openSectionFixture()
	sections.section.Capacity = 10
	sections.detail.Capacity = 10
	regs := &mockAdmissionRegs{enrolled: 10}
	svc, mock := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	decision, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonSectionFull, decision.Reason)
	assert.Nil(t, regs.created)
}

func TestAttemptRegisterLastSeat(t *testing.T) {
	sections, users := openSectionFixture()
	sections.section.Capacity = 10
	sections.detail.Capacity = 10
	regs := &mockAdmissionRegs{enrolled: 9}
	svc, mock := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	decision, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
}

func TestCapacityCheckedBeforeConflict(t *testing.T) {
	sections, users := openSectionFixture()
	sections.section.Capacity = 5
	sections.detail.Capacity = 5
	candidate := []models.ScheduleSlot{{DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615}}
	regs := &mockAdmissionRegs{
		enrolled: 5,
		active:   []models.RegisteredSlot{{SectionID: "sec-2", CourseCode: "MATH101", DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615}},
	}
	svc, mock := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, candidate)

	mock.ExpectBegin()
	mock.ExpectRollback()

	decision, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonSectionFull, decision.Reason)
}

func TestPreviewScheduleConflict(t *testing.T) {
	sections, users := openSectionFixture()
	candidate := []models.ScheduleSlot{{DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615}}
	regs := &mockAdmissionRegs{
		active: []models.RegisteredSlot{{SectionID: "sec-2", CourseCode: "MATH101", CourseTitle: "Calculus I", DayOfWeek: models.Monday, StartMinute: 600, EndMinute: 675}},
	}
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, candidate)

	decision, err := svc.Preview(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonScheduleConflict, decision.Reason)
	require.NotNil(t, decision.Conflict)
	assert.Equal(t, "MATH101", decision.Conflict.CourseCode)
	assert.Contains(t, decision.Message, "MATH101")
	assert.Contains(t, decision.Message, "Monday")
	assert.Contains(t, decision.Message, "10:00-11:15")
}

func TestPreviewBackToBackSlotsAdmitted(t *testing.T) {
	sections, users := openSectionFixture()
	candidate := []models.ScheduleSlot{{DayOfWeek: models.Monday, StartMinute: 540, EndMinute: 615}}
	regs := &mockAdmissionRegs{
		active: []models.RegisteredSlot{{SectionID: "sec-2", CourseCode: "MATH101", DayOfWeek: models.Monday, StartMinute: 615, EndMinute: 690}},
	}
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, candidate)

	decision, err := svc.Preview(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
}

func TestPreviewCreditLimit(t *testing.T) {
	sections, users := openSectionFixture()
	sections.detail.Credits = 4
	regs := &mockAdmissionRegs{totalCredits: 15}
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	decision, err := svc.Preview(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonCreditLimitExceeded, decision.Reason)
	assert.Contains(t, decision.Message, "18")
}

func TestPreviewCreditLimitExactFit(t *testing.T) {
	sections, users := openSectionFixture()
	sections.detail.Credits = 3
	regs := &mockAdmissionRegs{totalCredits: 15}
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	decision, err := svc.Preview(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
}

func TestAttemptRegisterClosedSection(t *testing.T) {
	sections, users := openSectionFixture()
	sections.section.Status = models.SectionStatusClosed
	sections.detail.Status = models.SectionStatusClosed
	svc, _ := newAdmissionService(t, sections, users, &mockAdmissionRegs{}, &stubGate{allow: true}, nil)

	_, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestAttemptRegisterInactiveStudent(t *testing.T) {
	sections, users := openSectionFixture()
	users.users["stu-1"].Active = false
	svc, _ := newAdmissionService(t, sections, users, &mockAdmissionRegs{}, &stubGate{allow: true}, nil)

	_, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestAttemptRegisterNonStudentTarget(t *testing.T) {
	sections, users := openSectionFixture()
	users.users["prof-1"] = &models.User{ID: "prof-1", Role: models.RoleProfessor, Active: true}
	svc, _ := newAdmissionService(t, sections, users, &mockAdmissionRegs{}, &stubGate{allow: true}, nil)

	_, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "admin", Role: models.RoleSuperAdmin}, RegisterRequest{StudentID: "prof-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestAttemptRegisterUnknownSection(t *testing.T) {
	sections, users := openSectionFixture()
	svc, _ := newAdmissionService(t, sections, users, &mockAdmissionRegs{}, &stubGate{allow: true}, nil)

	_, err := svc.AttemptRegister(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, RegisterRequest{StudentID: "stu-1", SectionID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttemptDrop(t *testing.T) {
	regs := &mockAdmissionRegs{
		registration: &models.Registration{ID: "reg-1", SectionID: "sec-1", StudentID: "stu-1", TermID: "term-1", State: models.RegistrationStateActive},
	}
	sections, users := openSectionFixture()
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	decision, err := svc.AttemptDrop(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, "reg-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	assert.Equal(t, models.RegistrationStateDropped, regs.stateChanges["reg-1"])
}

func TestAttemptDropDenied(t *testing.T) {
	regs := &mockAdmissionRegs{
		registration: &models.Registration{ID: "reg-1", SectionID: "sec-1", StudentID: "stu-1", State: models.RegistrationStateActive},
	}
	sections, users := openSectionFixture()
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: false}, nil)

	decision, err := svc.AttemptDrop(context.Background(), models.Actor{UserID: "stu-2", Role: models.RoleStudent}, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonUnauthorized, decision.Reason)
	assert.Empty(t, regs.stateChanges)
}

func TestAttemptDropAlreadyDropped(t *testing.T) {
	regs := &mockAdmissionRegs{
		registration: &models.Registration{ID: "reg-1", SectionID: "sec-1", StudentID: "stu-1", State: models.RegistrationStateDropped},
	}
	sections, users := openSectionFixture()
	svc, _ := newAdmissionService(t, sections, users, regs, &stubGate{allow: true}, nil)

	_, err := svc.AttemptDrop(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, "reg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
