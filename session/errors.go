package session

import "errors"

// Sentinel errors for session store operations.
var (
	ErrNotFound      = errors.New("session not found")
	ErrAccessDenied  = errors.New("session access denied")
	ErrInvalidDelta  = errors.New("produced messages shorter than skip count")
	ErrInvalidRole   = errors.New("invalid message role")
	ErrUnknownDriver = errors.New("unknown session driver")
)
