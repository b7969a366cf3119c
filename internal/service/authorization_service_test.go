package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type mockSchoolResolver struct {
	schools map[string]string
	err     error
}

func (m *mockSchoolResolver) OwningSchool(ctx context.Context, kind models.ResourceKind, id string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	school, ok := m.schools[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return school, nil
}

func newTestGate(resolver schoolResolver) *AuthorizationService {
	return NewAuthorizationService(resolver, zap.NewNop())
}

func TestCanSuperAdminAnywhere(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{})
	actor := models.Actor{UserID: "u1", Role: models.RoleSuperAdmin}

	for _, action := range []models.Action{models.ActionViewAny, models.ActionView, models.ActionCreate, models.ActionUpdate, models.ActionDelete} {
		ok, err := gate.Can(context.Background(), actor, action, models.ResourceSection, &models.ResourceRef{ID: "sec-1"})
		require.NoError(t, err)
		assert.True(t, ok, "super admin should pass %s", action)
	}
}

func TestCanSchoolAdminScopedToOwnSchool(t *testing.T) {
	resolver := &mockSchoolResolver{schools: map[string]string{"sec-1": "school-a", "sec-2": "school-b"}}
	gate := newTestGate(resolver)
	actor := models.Actor{UserID: "u1", Role: models.RoleSchoolAdmin, SchoolID: "school-a"}

	ok, err := gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceSection, &models.ResourceRef{ID: "sec-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceSection, &models.ResourceRef{ID: "sec-2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanSchoolAdminUsesProvidedSchoolID(t *testing.T) {
	// When the ref already carries the school there is no resolver call.
	resolver := &mockSchoolResolver{err: errors.New("must not be called")}
	gate := newTestGate(resolver)
	actor := models.Actor{UserID: "u1", Role: models.RoleSchoolAdmin, SchoolID: "school-a"}

	ok, err := gate.Can(context.Background(), actor, models.ActionCreate, models.ResourceCourse, &models.ResourceRef{SchoolID: "school-a"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanCoordinatorSectionOnly(t *testing.T) {
	resolver := &mockSchoolResolver{schools: map[string]string{"sec-1": "school-a", "dept-1": "school-a"}}
	gate := newTestGate(resolver)
	actor := models.Actor{UserID: "u1", Role: models.RoleMajorCoordinator, SchoolID: "school-a"}

	ok, err := gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceSection, &models.ResourceRef{ID: "sec-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Can(context.Background(), actor, models.ActionDelete, models.ResourceDepartment, &models.ResourceRef{ID: "dept-1"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gate.Can(context.Background(), actor, models.ActionView, models.ResourceDepartment, &models.ResourceRef{ID: "dept-1"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanProfessorOwnProfileOnly(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{})
	actor := models.Actor{UserID: "prof-1", Role: models.RoleProfessor}

	ok, err := gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceProfessorProfile, &models.ResourceRef{ID: "pp-1", OwnerUserID: "prof-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceProfessorProfile, &models.ResourceRef{ID: "pp-2", OwnerUserID: "prof-2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanStudentOwnRegistrationsOnly(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{})
	actor := models.Actor{UserID: "stu-1", Role: models.RoleStudent}

	ok, err := gate.Can(context.Background(), actor, models.ActionCreate, models.ResourceRegistration, &models.ResourceRef{OwnerUserID: "stu-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Can(context.Background(), actor, models.ActionCreate, models.ResourceRegistration, &models.ResourceRef{OwnerUserID: "stu-2"})
	require.NoError(t, err)
	assert.False(t, ok)

	// Students never update registrations; drops and re-registrations
	// are the only transitions.
	ok, err = gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceRegistration, &models.ResourceRef{OwnerUserID: "stu-1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanUnknownRoleDenied(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{})
	ok, err := gate.Can(context.Background(), models.Actor{UserID: "u1", Role: "AUDITOR"}, models.ActionView, models.ResourceTerm, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanBrokenOwnershipChainFailsClosed(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{schools: map[string]string{}})
	actor := models.Actor{UserID: "u1", Role: models.RoleSchoolAdmin, SchoolID: "school-a"}

	ok, err := gate.Can(context.Background(), actor, models.ActionUpdate, models.ResourceSection, &models.ResourceRef{ID: "orphaned"})
	assert.False(t, ok)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErr.Code)
}

func TestCanResolverFailureDenies(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{err: errors.New("connection reset")})
	actor := models.Actor{UserID: "u1", Role: models.RoleSchoolAdmin, SchoolID: "school-a"}

	ok, err := gate.Can(context.Background(), actor, models.ActionDelete, models.ResourceRoom, &models.ResourceRef{ID: "room-1"})
	assert.False(t, ok)
	require.Error(t, err)
}

func TestAllows(t *testing.T) {
	gate := newTestGate(&mockSchoolResolver{})

	assert.True(t, gate.Allows(models.RoleStudent, models.ActionCreate, models.ResourceRegistration))
	assert.False(t, gate.Allows(models.RoleStudent, models.ActionCreate, models.ResourceSection))
	assert.True(t, gate.Allows(models.RoleMajorCoordinator, models.ActionDelete, models.ResourceScheduleSlot))
	assert.False(t, gate.Allows(models.RoleProfessor, models.ActionCreate, models.ResourceCourse))
}
