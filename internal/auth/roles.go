package auth

import (
	"fmt"
	"strings"
)

// Role is an authorisation tier. The set is closed: only the constants below are valid.
type Role string

const (
	RoleReferee       Role = "arbitro"
	RoleAdministrator Role = "administrador"
	RolePresident     Role = "presidente"
)

// roleLevels is the total order used for permission comparison.
// Roles missing from this map have level 0.
var roleLevels = map[Role]int{
	RoleReferee:       1,
	RoleAdministrator: 2,
	RolePresident:     3,
}

// Roles lists the valid roles from lowest to highest.
func Roles() []Role {
	return []Role{RoleReferee, RoleAdministrator, RolePresident}
}

// ParseRole normalizes s and returns the matching role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the position of r in the hierarchy, or 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// Elevated reports whether r bypasses ownership checks.
func (r Role) Elevated() bool {
	return r == RoleAdministrator || r == RolePresident
}

func (r Role) String() string { return string(r) }

// HasPermission reports whether held satisfies required.
// Unknown roles on either side never grant access.
func HasPermission(held, required Role) bool {
	if !held.Valid() || !required.Valid() {
		return false
	}
	return held.Level() >= required.Level()
}
