package workflow

// Role represents a caller role used to gate stage actions
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleHRManager   Role = "HR_MANAGER"
	RoleHeadTeacher Role = "HEAD_TEACHER"
	RoleDirector    Role = "DIRECTOR"
	RoleSupervisor  Role = "SUPERVISOR"
	RoleStaff       Role = "STAFF"
)

var validRoles = map[Role]bool{
	RoleAdmin:       true,
	RoleHRManager:   true,
	RoleHeadTeacher: true,
	RoleDirector:    true,
	RoleSupervisor:  true,
	RoleStaff:       true,
}

// IsValid returns true if the role is a known role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Authorize reports whether a caller holding the given role may perform an
// action gated on required. An empty required role means the action is open
// to any authenticated caller. Admin passes every gate.
func Authorize(caller, required Role) bool {
	if required == "" {
		return true
	}
	if caller == RoleAdmin {
		return true
	}
	return caller == required
}
