package utils

import (
	"errors"
	"fmt"
	"strings"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// ValidationError reports missing or invalid request fields.
type ValidationError struct {
	Fields []string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// NewValidationError builds a ValidationError naming the missing fields.
func NewValidationError(fields ...string) error {
	return &ValidationError{Fields: fields}
}

// NotFoundError reports that the targeted record does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// UpstreamError wraps a failed Jenkins call. StatusCode is zero for transport errors.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: upstream returned %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: upstream request failed: %v", e.Op, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MalformedInputError reports a client-supplied blob that could not be parsed.
type MalformedInputError struct {
	Field string
	Err   error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Field, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsMalformed reports whether err carries a MalformedInputError.
func IsMalformed(err error) bool {
	var m *MalformedInputError
	return errors.As(err, &m)
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}
