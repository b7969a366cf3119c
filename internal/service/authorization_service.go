package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type schoolResolver interface {
	OwningSchool(ctx context.Context, kind models.ResourceKind, id string) (string, error)
}

// accessScope qualifies a granted cell of the permission matrix.
type accessScope int

const (
	scopeDeny accessScope = iota
	scopeAny
	scopeSchool
	scopeSelf
)

type actionScopes map[models.Action]accessScope

// permissionMatrix is the closed (role x resource x action) table every
// authorization decision is read from. There are no per-resource
// conditionals anywhere else in the system.
var permissionMatrix = buildPermissionMatrix()

var allResourceKinds = []models.ResourceKind{
	models.ResourceSchool,
	models.ResourceDepartment,
	models.ResourceMajor,
	models.ResourceBuilding,
	models.ResourceRoom,
	models.ResourceTerm,
	models.ResourceCourse,
	models.ResourceSection,
	models.ResourceScheduleSlot,
	models.ResourceRegistration,
	models.ResourceProfessorProfile,
	models.ResourceUser,
}

// referenceKinds are viewable by any authenticated actor regardless of role.
var referenceKinds = []models.ResourceKind{
	models.ResourceSchool,
	models.ResourceDepartment,
	models.ResourceMajor,
	models.ResourceBuilding,
	models.ResourceRoom,
	models.ResourceTerm,
	models.ResourceCourse,
	models.ResourceSection,
	models.ResourceScheduleSlot,
}

func fullAccess(scope accessScope) actionScopes {
	return actionScopes{
		models.ActionViewAny: scopeAny,
		models.ActionView:    scopeAny,
		models.ActionCreate:  scope,
		models.ActionUpdate:  scope,
		models.ActionDelete:  scope,
	}
}

func viewOnly() actionScopes {
	return actionScopes{
		models.ActionViewAny: scopeAny,
		models.ActionView:    scopeAny,
	}
}

func buildPermissionMatrix() map[models.UserRole]map[models.ResourceKind]actionScopes {
	matrix := make(map[models.UserRole]map[models.ResourceKind]actionScopes)

	superAdmin := make(map[models.ResourceKind]actionScopes)
	for _, kind := range allResourceKinds {
		superAdmin[kind] = fullAccess(scopeAny)
	}
	matrix[models.RoleSuperAdmin] = superAdmin

	schoolAdmin := make(map[models.ResourceKind]actionScopes)
	for _, kind := range allResourceKinds {
		schoolAdmin[kind] = fullAccess(scopeSchool)
	}
	matrix[models.RoleSchoolAdmin] = schoolAdmin

	coordinator := make(map[models.ResourceKind]actionScopes)
	for _, kind := range allResourceKinds {
		coordinator[kind] = viewOnly()
	}
	coordinator[models.ResourceSection] = fullAccess(scopeSchool)
	coordinator[models.ResourceScheduleSlot] = fullAccess(scopeSchool)
	matrix[models.RoleMajorCoordinator] = coordinator

	professor := make(map[models.ResourceKind]actionScopes)
	for _, kind := range referenceKinds {
		professor[kind] = viewOnly()
	}
	professor[models.ResourceProfessorProfile] = actionScopes{
		models.ActionView:   scopeSelf,
		models.ActionUpdate: scopeSelf,
	}
	matrix[models.RoleProfessor] = professor

	student := make(map[models.ResourceKind]actionScopes)
	for _, kind := range referenceKinds {
		student[kind] = viewOnly()
	}
	student[models.ResourceRegistration] = actionScopes{
		models.ActionViewAny: scopeSelf,
		models.ActionView:    scopeSelf,
		models.ActionCreate:  scopeSelf,
		models.ActionDelete:  scopeSelf,
	}
	matrix[models.RoleStudent] = student

	return matrix
}

// AuthorizationService evaluates (actor, action, resource) decisions
// against the permission matrix. It has no side effects; callers turn a
// false result into an unauthorized outcome.
type AuthorizationService struct {
	resolver schoolResolver
	logger   *zap.Logger
}

// NewAuthorizationService constructs the gate.
func NewAuthorizationService(resolver schoolResolver, logger *zap.Logger) *AuthorizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{resolver: resolver, logger: logger}
}

// Allows reports whether the role could ever perform the action on the
// resource kind, ignoring scope. Route middleware uses it as a cheap
// pre-filter; the scoped Can call remains authoritative.
func (s *AuthorizationService) Allows(role models.UserRole, action models.Action, kind models.ResourceKind) bool {
	kinds, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	actions, ok := kinds[kind]
	if !ok {
		return false
	}
	return actions[action] != scopeDeny
}

// Can decides whether the actor may perform the action on the referenced
// resource. The only error it returns is an integrity failure while
// resolving the ownership chain; in that case the decision is deny.
func (s *AuthorizationService) Can(ctx context.Context, actor models.Actor, action models.Action, kind models.ResourceKind, ref *models.ResourceRef) (bool, error) {
	kinds, ok := permissionMatrix[actor.Role]
	if !ok {
		return false, nil
	}
	actions, ok := kinds[kind]
	if !ok {
		return false, nil
	}

	switch actions[action] {
	case scopeAny:
		return true, nil
	case scopeSelf:
		if ref == nil || ref.OwnerUserID == "" {
			return false, nil
		}
		return ref.OwnerUserID == actor.UserID, nil
	case scopeSchool:
		if actor.SchoolID == "" || ref == nil {
			return false, nil
		}
		schoolID := ref.SchoolID
		if schoolID == "" {
			if ref.ID == "" {
				return false, nil
			}
			resolved, err := s.resolver.OwningSchool(ctx, kind, ref.ID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					s.logger.Error("owning school could not be resolved",
						zap.String("resource_kind", string(kind)),
						zap.String("resource_id", ref.ID))
					return false, appErrors.Clone(appErrors.ErrIntegrity, "resource ownership could not be resolved")
				}
				return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve owning school")
			}
			schoolID = resolved
		}
		return schoolID == actor.SchoolID, nil
	default:
		return false, nil
	}
}
