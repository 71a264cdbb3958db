package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCodename indicates a permission codename is already defined.
	ErrDuplicateCodename = errors.New("duplicate permission codename")
	// ErrMissingReason indicates an override or role change was submitted without an audit reason.
	ErrMissingReason = errors.New("reason required")
	// ErrInvalidCredentials indicates token authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
