// Package hierarchy holds the fixed role rank table. Ranks are compiled
// constants, never database state, so role comparisons work even when the
// backing store is unavailable.
package hierarchy

// Role names used across the platform.
const (
	RoleSuperuser      = "superuser"
	RoleMP             = "mp"
	RoleChiefOfStaff   = "chief_of_staff"
	RoleAdmin          = "admin"
	RoleCoordinator    = "coordinator"
	RoleInfoOfficer    = "info_officer"
	RoleStaff          = "staff"
	RoleChapterMember  = "chapter_member"
	RoleRegisteredUser = "registered_user"
)

// rankUnknown is the sentinel for unrecognized roles. It sits below every
// real rank so an unmapped role can never satisfy a requirement.
const rankUnknown = 0

var ranks = map[string]int{
	RoleSuperuser:      10,
	RoleMP:             9,
	RoleChiefOfStaff:   8,
	RoleAdmin:          7,
	RoleCoordinator:    6,
	RoleInfoOfficer:    5,
	RoleStaff:          4,
	RoleChapterMember:  3,
	RoleRegisteredUser: 2,
}

// aliases maps retired role names onto their modern equivalents. Kept as an
// indirection in front of the rank table so new legacy names can be added
// without touching ranks.
var aliases = map[string]string{
	"member":      RoleChapterMember,
	"constituent": RoleRegisteredUser,
}

// Canonical resolves legacy aliases to the modern role name. Unknown roles
// pass through unchanged.
func Canonical(role string) string {
	if modern, ok := aliases[role]; ok {
		return modern
	}
	return role
}

// Rank returns the numeric rank for a role. Unknown roles resolve to the
// bottom sentinel rather than erroring, so a bad role value denies instead
// of granting.
func Rank(role string) int {
	if r, ok := ranks[Canonical(role)]; ok {
		return r
	}
	return rankUnknown
}

// Satisfies reports whether userRole meets or exceeds requiredRole.
func Satisfies(userRole, requiredRole string) bool {
	required := Rank(requiredRole)
	if required == rankUnknown {
		// An unknown requirement is never satisfiable.
		return false
	}
	return Rank(userRole) >= required
}

// Known reports whether the role maps to a real rank, after alias resolution.
func Known(role string) bool {
	_, ok := ranks[Canonical(role)]
	return ok
}

// Roles returns all modern role names, highest rank first.
func Roles() []string {
	return []string{
		RoleSuperuser,
		RoleMP,
		RoleChiefOfStaff,
		RoleAdmin,
		RoleCoordinator,
		RoleInfoOfficer,
		RoleStaff,
		RoleChapterMember,
		RoleRegisteredUser,
	}
}
