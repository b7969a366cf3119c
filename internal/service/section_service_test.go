package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type mockSectionRepo struct {
	sections map[string]models.Section
	details  map[string]models.SectionDetail
	created  *models.Section
	updated  *models.Section
	deleted  []string
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	var list []models.SectionDetail
	for _, d := range m.details {
		list = append(list, d)
	}
	return list, len(list), nil
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = "new-sec"
	}
	m.created = section
	if m.sections == nil {
		m.sections = make(map[string]models.Section)
	}
	if m.details == nil {
		m.details = make(map[string]models.SectionDetail)
	}
	m.sections[section.ID] = *section
	m.details[section.ID] = models.SectionDetail{Section: *section}
	return nil
}

func (m *mockSectionRepo) Update(ctx context.Context, section *models.Section) error {
	m.updated = section
	m.sections[section.ID] = *section
	if d, ok := m.details[section.ID]; ok {
		d.Section = *section
		m.details[section.ID] = d
	}
	return nil
}

func (m *mockSectionRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.sections, id)
	delete(m.details, id)
	return nil
}

type mockSectionRegs struct {
	enrolled int
	roster   []models.RegistrationDetail
}

func (m *mockSectionRegs) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	return m.enrolled, nil
}

func (m *mockSectionRegs) ListActiveDetailBySection(ctx context.Context, sectionID string) ([]models.RegistrationDetail, error) {
	return m.roster, nil
}

type mockProfileReader struct {
	profiles map[string]*models.ProfessorProfile
}

func (m *mockProfileReader) FindByID(ctx context.Context, id string) (*models.ProfessorProfile, error) {
	if p, ok := m.profiles[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func sectionFixture() *mockSectionRepo {
	section := models.Section{ID: "sec-1", CourseID: "crs-1", TermID: "term-1", ProfessorProfileID: "pp-1", Capacity: 25, Status: models.SectionStatusOpen}
	return &mockSectionRepo{
		sections: map[string]models.Section{"sec-1": section},
		details: map[string]models.SectionDetail{"sec-1": {
			Section:    section,
			CourseCode: "CS101",
			SchoolID:   "school-a",
			TermName:   "Fall 2026",
		}},
	}
}

func newSectionTestService(repo *mockSectionRepo, regs *mockSectionRegs, profiles *mockProfileReader, gate admissionGate, resolver schoolResolver) *SectionService {
	if regs == nil {
		regs = &mockSectionRegs{}
	}
	if profiles == nil {
		profiles = &mockProfileReader{}
	}
	if resolver == nil {
		resolver = &mockSchoolResolver{}
	}
	return NewSectionService(repo, regs, profiles, &mockAdmissionSlots{}, resolver, gate, nil, time.Minute, nil, zap.NewNop())
}

func TestSectionAvailability(t *testing.T) {
	repo := sectionFixture()
	svc := newSectionTestService(repo, &mockSectionRegs{enrolled: 21}, nil, &stubGate{allow: true}, nil)

	availability, err := svc.Availability(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 25, availability.Capacity)
	assert.Equal(t, 21, availability.Enrolled)
	assert.Equal(t, 4, availability.SeatsLeft)
	assert.Equal(t, models.SectionStatusOpen, availability.Status)
}

func TestSectionAvailabilityNeverNegative(t *testing.T) {
	repo := sectionFixture()
	svc := newSectionTestService(repo, &mockSectionRegs{enrolled: 30}, nil, &stubGate{allow: true}, nil)

	availability, err := svc.Availability(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 0, availability.SeatsLeft)
}

func TestSectionCreateResolvesCourseSchool(t *testing.T) {
	repo := sectionFixture()
	resolver := &mockSchoolResolver{schools: map[string]string{"crs-1": "school-a"}}
	svc := newSectionTestService(repo, nil, nil, &stubGate{allow: true}, resolver)

	detail, err := svc.Create(context.Background(), models.Actor{UserID: "admin", Role: models.RoleSchoolAdmin, SchoolID: "school-a"}, CreateSectionRequest{
		CourseID:           "crs-1",
		TermID:             "term-1",
		ProfessorProfileID: "pp-1",
		Capacity:           40,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.SectionStatusOpen, repo.created.Status)
	assert.Equal(t, 40, detail.Capacity)
}

func TestSectionCreateUnknownCourse(t *testing.T) {
	repo := sectionFixture()
	svc := newSectionTestService(repo, nil, nil, &stubGate{allow: true}, &mockSchoolResolver{})

	_, err := svc.Create(context.Background(), models.Actor{UserID: "admin", Role: models.RoleSuperAdmin}, CreateSectionRequest{
		CourseID:           "missing",
		TermID:             "term-1",
		ProfessorProfileID: "pp-1",
		Capacity:           40,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSectionCreateForbidden(t *testing.T) {
	repo := sectionFixture()
	resolver := &mockSchoolResolver{schools: map[string]string{"crs-1": "school-a"}}
	svc := newSectionTestService(repo, nil, nil, &stubGate{allow: false}, resolver)

	_, err := svc.Create(context.Background(), models.Actor{UserID: "stu-1", Role: models.RoleStudent}, CreateSectionRequest{
		CourseID:           "crs-1",
		TermID:             "term-1",
		ProfessorProfileID: "pp-1",
		Capacity:           40,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestSectionDeleteBlockedByActiveRegistrations(t *testing.T) {
	repo := sectionFixture()
	svc := newSectionTestService(repo, &mockSectionRegs{enrolled: 3}, nil, &stubGate{allow: true}, nil)

	err := svc.Delete(context.Background(), models.Actor{UserID: "admin", Role: models.RoleSuperAdmin}, "sec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestSectionDeleteEmptySection(t *testing.T) {
	repo := sectionFixture()
	svc := newSectionTestService(repo, &mockSectionRegs{enrolled: 0}, nil, &stubGate{allow: true}, nil)

	err := svc.Delete(context.Background(), models.Actor{UserID: "admin", Role: models.RoleSuperAdmin}, "sec-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "sec-1")
}

func TestExportRosterCSVForAssignedProfessor(t *testing.T) {
	repo := sectionFixture()
	regs := &mockSectionRegs{roster: []models.RegistrationDetail{
		{
			Registration: models.Registration{ID: "reg-1", RegisteredAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
			StudentName:  "Dana Smith",
			CourseCode:   "CS101",
			CourseTitle:  "Intro to Computing",
			Credits:      3,
			TermName:     "Fall 2026",
		},
	}}
	profiles := &mockProfileReader{profiles: map[string]*models.ProfessorProfile{
		"pp-1": {ID: "pp-1", UserID: "prof-1"},
	}}
	svc := newSectionTestService(repo, regs, profiles, &stubGate{allow: false}, nil)

	result, err := svc.ExportRoster(context.Background(), models.Actor{UserID: "prof-1", Role: models.RoleProfessor}, "sec-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	content := string(result.Content)
	assert.True(t, strings.HasPrefix(content, "Student,Course,Term,Credits,Registered At"))
	assert.Contains(t, content, "Dana Smith")
	assert.Contains(t, content, "CS101 Intro to Computing")
}

func TestExportRosterDeniedForOtherProfessor(t *testing.T) {
	repo := sectionFixture()
	profiles := &mockProfileReader{profiles: map[string]*models.ProfessorProfile{
		"pp-1": {ID: "pp-1", UserID: "prof-1"},
	}}
	svc := newSectionTestService(repo, nil, profiles, &stubGate{allow: false}, nil)

	_, err := svc.ExportRoster(context.Background(), models.Actor{UserID: "prof-2", Role: models.RoleProfessor}, "sec-1", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportRosterUnsupportedFormat(t *testing.T) {
	repo := sectionFixture()
	profiles := &mockProfileReader{profiles: map[string]*models.ProfessorProfile{
		"pp-1": {ID: "pp-1", UserID: "prof-1"},
	}}
	svc := newSectionTestService(repo, nil, profiles, &stubGate{allow: false}, nil)

	_, err := svc.ExportRoster(context.Background(), models.Actor{UserID: "prof-1", Role: models.RoleProfessor}, "sec-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
