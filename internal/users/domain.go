package users

import "time"

// User is the identity this engine makes decisions about. Role is held by
// value, not FK: ranks are compiled constants. Chapter is opaque tenant
// scoping passed through to consumers, never interpreted here.
type User struct {
	ID                  int64
	Email               string
	Name                string
	Role                string
	Chapter             string
	IsActive            bool
	RoleAssignedAt      *time.Time
	RoleAssignedBy      *int64
	LastPermissionCheck *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
