package model

import "strings"

// Role determines which workflow actions a principal may invoke
type Role string

const (
	RoleProjectManager Role = "project_manager"
	RoleProgramManager Role = "program_manager"
	RoleDirector       Role = "director"
)

// AllRoles in hand-off order
var AllRoles = []Role{RoleProjectManager, RoleProgramManager, RoleDirector}

func (r Role) Valid() bool {
	switch r {
	case RoleProjectManager, RoleProgramManager, RoleDirector:
		return true
	}
	return false
}

// Reviewing reports whether comments by r expect a response from the project manager
func (r Role) Reviewing() bool {
	return r == RoleProgramManager || r == RoleDirector
}

func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// Principal is the authenticated caller supplied by the identity layer
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
