package auth

import "errors"

var (
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: conflict")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPrincipalNotFound  = errors.New("auth: principal not found")
	ErrDuplicateEmail     = errors.New("auth: email already in use")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrMissingSecret      = errors.New("auth: signing secret is not configured")
)

// Access credential failures.
var (
	ErrInvalidCredential = errors.New("auth: invalid access token")
	ErrCredentialExpired = errors.New("auth: access token expired")
)

// Refresh credential failures.
var (
	ErrTokenNotFound = errors.New("auth: refresh token not found")
	ErrTokenUnusable = errors.New("auth: refresh token is not usable")
)
