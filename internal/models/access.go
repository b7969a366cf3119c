package models

// Action enumerates the operations evaluated by the authorization matrix.
type Action string

const (
	ActionViewAny Action = "VIEW_ANY"
	ActionView    Action = "VIEW"
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
)

// ResourceKind enumerates the resource types guarded by the authorization matrix.
type ResourceKind string

const (
	ResourceSchool           ResourceKind = "SCHOOL"
	ResourceDepartment       ResourceKind = "DEPARTMENT"
	ResourceMajor            ResourceKind = "MAJOR"
	ResourceBuilding         ResourceKind = "BUILDING"
	ResourceRoom             ResourceKind = "ROOM"
	ResourceTerm             ResourceKind = "TERM"
	ResourceCourse           ResourceKind = "COURSE"
	ResourceSection          ResourceKind = "SECTION"
	ResourceScheduleSlot     ResourceKind = "SCHEDULE_SLOT"
	ResourceRegistration     ResourceKind = "REGISTRATION"
	ResourceProfessorProfile ResourceKind = "PROFESSOR_PROFILE"
	ResourceUser             ResourceKind = "USER"
)

// Actor identifies the authenticated user driving an operation. It is
// threaded explicitly through services instead of being read from ambient
// session state so authorization stays testable.
type Actor struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	SchoolID string   `json:"school_id,omitempty"`
}

// ResourceRef carries the identity needed to scope an authorization
// decision to a concrete resource. SchoolID and OwnerUserID may be left
// empty when unknown; the gate resolves ownership through the school
// chain when required.
type ResourceRef struct {
	ID          string
	SchoolID    string
	OwnerUserID string
}
