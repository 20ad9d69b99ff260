package service

import "errors"

var (
	ErrValidation         = errors.New("validation")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("token is invalid or expired")
)

// FieldError carries per field messages for a rejected request.
type FieldError struct {
	Fields map[string][]string
}

func (e *FieldError) Error() string {
	return "validation failed"
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

func fieldError(field, msg string) *FieldError {
	return &FieldError{Fields: map[string][]string{field: {msg}}}
}
