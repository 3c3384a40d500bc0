package core

import "errors"

var (
	// ErrTokenNotFound is returned by a SessionStore when no record exists at a key
	ErrTokenNotFound = errors.New("csrf token not found")

	// ErrMissingProtection is returned when a form is posted without any CSRF field
	// and the violation has been reported and redirected
	ErrMissingProtection = errors.New("form submitted without CSRF protection")

	// ErrNoSession is returned when a token is requested for a request without a session
	ErrNoSession = errors.New("request has no session identifier")

	// ErrUnknownStrategy is returned for an unsupported token value strategy name
	ErrUnknownStrategy = errors.New("unknown token value strategy")
)

// ProtectionError is the fatal form of a missing-protection violation.
// In development mode the caller must abort the request with Message.
type ProtectionError struct {
	Message string
	Fatal   bool
}

func (e *ProtectionError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match ErrMissingProtection.
func (e *ProtectionError) Unwrap() error {
	return ErrMissingProtection
}
