package services

import "errors"

// Sentinel errors shared by the tree services. Handlers map them to HTTP
// status codes with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("not owned by the current user")
	ErrValidation    = errors.New("validation failed")
	ErrQuotaExceeded = errors.New("quota exceeded")
)
