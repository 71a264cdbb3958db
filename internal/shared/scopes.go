package shared

// Core platform permissions guarding the administrative surface itself.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermOverridesEdit = "overrides.edit"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermOverridesEdit,
		PermAuditView,
	}
}
