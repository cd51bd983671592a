package patrol

import "errors"

// State errors are returned to the caller and never retried automatically.
var (
	ErrAlreadyActive    = errors.New("ALREADY_ACTIVE")
	ErrSessionNotActive = errors.New("SESSION_NOT_ACTIVE")
	ErrUnknownSession   = errors.New("UNKNOWN_SESSION")
	ErrInvalidFix       = errors.New("INVALID_FIX")
)
