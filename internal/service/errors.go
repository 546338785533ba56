// Package service holds the business rules that sit between the HTTP
// handlers and the stores: record validation, image lifecycle and account
// credentials.
package service

import "errors"

var (
	// ErrValidation matches every *FieldError.
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// FieldError is a client mistake whose message is safe to return verbatim.
type FieldError struct{ Msg string }

func (e *FieldError) Error() string        { return e.Msg }
func (e *FieldError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &FieldError{Msg: msg} }
