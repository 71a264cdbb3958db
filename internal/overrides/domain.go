package overrides

import "time"

// Override is a per-user exception outside the role-derived rules. IsGranted
// true force-grants, false force-revokes. A past ExpiresAt makes the row
// inert at read time; the row itself is never reaped.
type Override struct {
	ID           int64
	UserID       int64
	PermissionID int64
	Codename     string
	IsGranted    bool
	Reason       string
	ExpiresAt    *time.Time
	CreatedBy    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// PermissionActive mirrors the underlying permission's soft-disable
	// flag. A grant override cannot resurrect a deactivated permission.
	PermissionActive bool
}

// ExpiredAt reports whether the override is inert at the given instant.
func (o Override) ExpiredAt(now time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(now)
}
