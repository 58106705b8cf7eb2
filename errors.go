package hooq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// codeCanceled marks a request aborted by its own context, either because a
// newer attempt superseded it or the owning hook was closed. Canceled
// failures never surface as user-visible error state.
const codeCanceled = "canceled"

// RequestError reports a network or HTTP-status failure from the transport.
type RequestError struct {
	// Status is the HTTP status code, or 0 if the request never completed.
	Status int

	// Code is a transport-level code such as "canceled".
	Code string

	Message string

	// Body is the raw response body, if a response was received.
	Body []byte
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("request failed: %d: %s", e.Status, e.Message)
	}
	return "request failed: " + e.Message
}

// Canceled reports whether the failure was a benign cancellation
// (superseded refetch or hook teardown).
func (e *RequestError) Canceled() bool {
	return e.Code == codeCanceled
}

// Data decodes the response body into v.
// Useful for servers that return a structured error envelope.
func (e *RequestError) Data(v any) error {
	if len(e.Body) == 0 {
		return errors.New("hooq: error response has no body")
	}
	return json.Unmarshal(e.Body, v)
}

// FieldIssue is a single schema-validation failure at one field path.
type FieldIssue struct {
	Path    string
	Message string
}

// ValidationError is a structured, field-keyed schema parse failure on
// params, body, or response data.
type ValidationError struct {
	Issues []FieldIssue
}

// Error returns the first issue's message, with a count of the remaining
// issues appended when there are more than one.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	first := e.Issues[0].Message
	if n := len(e.Issues) - 1; n > 0 {
		return fmt.Sprintf("%s. (and %d more errors)", first, n)
	}
	return first + "."
}

// Fields returns the issues flattened into a field-path -> messages map.
func (e *ValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Issues))
	for _, is := range e.Issues {
		out[is.Path] = append(out[is.Path], is.Message)
	}
	return out
}

// newValidationError converts validator failures into a ValidationError,
// preserving the validator's field order.
func newValidationError(verrs validator.ValidationErrors) *ValidationError {
	issues := make([]FieldIssue, 0, len(verrs))
	for _, ve := range verrs {
		issues = append(issues, FieldIssue{
			Path:    fieldPath(ve),
			Message: ve.Field() + " " + formatFieldError(ve),
		})
	}
	return &ValidationError{Issues: issues}
}

// fieldPath strips the root struct name from the validator namespace, so a
// nested failure reports "address.city" rather than "CreateUser.address.city".
func fieldPath(ve validator.FieldError) string {
	ns := ve.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ve.Field()
}

// formatFieldError converts a validator.FieldError to a human-readable message.
func formatFieldError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "len":
		return fmt.Sprintf("must have length %s", ve.Param())
	case "eq":
		return fmt.Sprintf("must equal %s", ve.Param())
	case "ne":
		return fmt.Sprintf("must not equal %s", ve.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// ErrorContext is passed to generic error callbacks.
type ErrorContext struct {
	// Err is the underlying error: *RequestError, *ValidationError, or an
	// unclassified error.
	Err error

	// Message is a best-effort human-readable summary of Err.
	Message string
}

// ErrorHandler receives classified request failures.
type ErrorHandler func(ErrorContext)

// ValidationErrorHandler receives schema validation failures.
type ValidationErrorHandler func(*ValidationError)

// errorMessage extracts a human-readable message from any error value.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Error()
	}
	return err.Error()
}

// canceled reports whether err is a benign cancellation of any flavor.
func canceled(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Canceled() {
		return true
	}
	return errors.Is(err, context.Canceled)
}
