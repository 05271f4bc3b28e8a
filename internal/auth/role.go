// ABOUTME: Closed role enumeration for portal principals
// ABOUTME: Unknown role strings never become a Role value

package auth

import "fmt"

// Role is the caller's portal role.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
)

// ParseRole converts s into a Role, rejecting anything outside the enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleFaculty:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	return string(r)
}
