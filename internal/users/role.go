package users

import "strings"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func IsValidRole(role string) bool {
	switch role {
	case string(RoleUser), string(RoleAdmin):
		return true
	default:
		return false
	}
}

// NormalizeRole upper-cases role and falls back to RoleUser for anything
// that is not a known role.
func NormalizeRole(role string) Role {
	role = strings.ToUpper(strings.TrimSpace(role))
	if !IsValidRole(role) {
		return RoleUser
	}
	return Role(role)
}
