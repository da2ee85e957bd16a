package auth

import "strings"

// Role is an authorisation tier. Roles are totally ordered: USER < MANAGER < ADMIN.
type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalises s into a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r.Rank() == 0 {
		return "", false
	}
	return r, true
}

// Rank returns the position of the role in the hierarchy; unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleManager:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is min or above. Unknown roles never qualify.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && min.Rank() > 0 && r.Rank() >= min.Rank()
}

func (r Role) Valid() bool { return r.Rank() > 0 }

func (r Role) String() string { return string(r) }
