package services

import "errors"

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrEmptyMessage        = errors.New("message must contain text or media")
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrRegistrationTimeout = errors.New("room registration timed out")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
)
