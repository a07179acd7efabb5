package auth

import "errors"

var (
	// ErrInvalidToken indicates a token failed signature or claims validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidCredentials indicates an email/password pair did not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNotFound indicates a missing auth record (e.g. refresh token).
	ErrNotFound = errors.New("auth: not found")
)
