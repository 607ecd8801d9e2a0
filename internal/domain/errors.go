package domain

import (
	"errors"
	"fmt"
)

// Error codes of the order submission pipeline. Every failure is fatal to the
// submission attempt; the code tells the caller which stage rejected it.
const (
	ErrSchema      = "SCHEMA_ERROR"
	ErrParse       = "PARSE_ERROR"
	ErrReference   = "REFERENCE_ERROR"
	ErrValidation  = "VALIDATION_ERROR"
	ErrDuplicate   = "DUPLICATE_ERROR"
	ErrRemote      = "REMOTE_ERROR"
	ErrUnsupported = "UNSUPPORTED_VALUE"
)

// Entities named by pipeline errors.
const (
	EntityProject   = "project"
	EntityFamily    = "family"
	EntitySample    = "sample"
	EntityContainer = "container"
	EntityTag       = "application tag"
	EntityCustomer  = "customer"
	EntityOrderForm = "order form"
)

// PipelineError is a failure of one stage of the order pipeline. It always
// names the offending entity so an operator can correct it and resubmit.
type PipelineError struct {
	Code    string `json:"code"`
	Entity  string `json:"entity,omitempty"`
	Name    string `json:"name,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Entity != "" {
		msg = fmt.Sprintf("%s %q: %s", e.Entity, e.Name, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(code, entity, name, message string) *PipelineError {
	return &PipelineError{Code: code, Entity: entity, Name: name, Message: message}
}

// WithField records the offending field.
func (e *PipelineError) WithField(field string) *PipelineError {
	e.Field = field
	return e
}

// Wrap attaches the cause of the failure.
func (e *PipelineError) Wrap(err error) *PipelineError {
	e.Err = err
	return e
}

// CodeOf returns the pipeline error code of err, or "" when err is not a PipelineError.
func CodeOf(err error) string {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// RemoteError wraps a failed LIMS call.
func RemoteError(entity, name, action string, err error) *PipelineError {
	return NewPipelineError(ErrRemote, entity, name, action).Wrap(err)
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
