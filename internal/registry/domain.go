package registry

import "time"

// Permission is a named, module-scoped capability. Codenames are the stable
// identifiers used in checks; display names are for the admin UI only.
type Permission struct {
	ID          int64
	Codename    string
	Name        string
	Module      string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RolePermission associates a role with a permission. Revocation flips
// IsActive instead of deleting so the historical association survives.
// CanDelegate is stored for future delegation features and not enforced yet.
type RolePermission struct {
	ID           int64
	Role         string
	PermissionID int64
	Codename     string
	IsActive     bool
	CanDelegate  bool
	CreatedAt    time.Time
}
