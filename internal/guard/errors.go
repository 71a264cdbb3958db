package guard

// AccessDeniedError is returned when a role or permission gate refuses an
// operation. Its message is deliberately generic: the missing requirement is
// logged server-side, never echoed to the caller.
type AccessDeniedError struct {
	RequiredRole       string
	RequiredPermission string
}

func (e *AccessDeniedError) Error() string {
	return "access denied: you do not have permission to perform this action"
}
