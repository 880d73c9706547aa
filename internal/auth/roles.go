package auth

// Admin role constants.
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// AllAdminRoles returns all valid admin roles.
func AllAdminRoles() []string {
	return []string{RoleAnalyst, RoleAdmin}
}

// IngestRoles returns roles allowed to submit detections.
func IngestRoles() []string {
	return []string{RoleAnalyst, RoleAdmin}
}

// ValidAdminRole reports whether role is a known admin role.
func ValidAdminRole(role string) bool {
	for _, r := range AllAdminRoles() {
		if r == role {
			return true
		}
	}
	return false
}
