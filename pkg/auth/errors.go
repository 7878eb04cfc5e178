package auth

import "errors"

var (
	// ErrMissingCredential means no Authorization header was sent
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential means the credential was malformed or rejected by the provider
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrForbidden means the caller lacks the required role
	ErrForbidden = errors.New("forbidden")
)
