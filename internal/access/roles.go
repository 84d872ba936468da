package access

import "strings"

// Role is a closed role code enumeration.
type Role string

const (
	RoleSuperAdmin  Role = "SAD"
	RoleSubDirector Role = "SD"
	RoleProcurement Role = "DAA"
	RoleBudget      Role = "BUDGET"
	RoleFinance     Role = "DFC"
	RoleTreasury    Role = "TRESOR"
	RoleAgent       Role = "AGENT"
)

// ParseRole normalises a raw role code. Unknown codes are preserved so that
// they fall through to department-scoped visibility.
func ParseRole(code string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(code)))
}

// globalRoles bypass department filtering for every entity type.
// The sub-director (SD) is handled separately for purchase orders.
var globalRoles = map[Role]struct{}{
	RoleSuperAdmin:  {},
	RoleSubDirector: {},
	RoleProcurement: {},
	RoleBudget:      {},
	RoleFinance:     {},
	RoleTreasury:    {},
}

// Global reports whether the role bypasses all department filtering.
func (r Role) Global() bool {
	_, ok := globalRoles[r]
	return ok
}
