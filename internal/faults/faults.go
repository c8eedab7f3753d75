// Package faults defines the error kinds raised while talking to hypermedia
// services and while running guarded workflow transitions.
package faults

import (
	"errors"
	"fmt"
)

// Code categorizes a fault.
type Code string

const (
	// CodeTransport indicates a network or HTTP failure reaching an endpoint.
	CodeTransport Code = "TRANSPORT_ERROR"

	// CodePrecondition indicates a fetched resource was not in the expected
	// status before a mutation.
	CodePrecondition Code = "PRECONDITION_VIOLATION"

	// CodePostcondition indicates the status returned by a mutation did not
	// match the expected result.
	CodePostcondition Code = "POSTCONDITION_VIOLATION"

	// CodeReconciliation indicates an event feed shrank between polls.
	CodeReconciliation Code = "RECONCILIATION_FAULT"
)

// Error is a classified failure with enough context to log or report it.
type Error struct {
	// Code identifies the fault category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Method and URL identify the request for transport faults.
	Method string
	URL    string

	// StatusCode is the HTTP status when the server answered.
	StatusCode int

	// Expected and Actual hold the compared values for condition faults.
	Expected string
	Actual   string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Method, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransport wraps a failure to reach or read from an endpoint.
// statusCode is 0 when no response was received.
func NewTransport(method, url string, statusCode int, err error) *Error {
	msg := "request failed"
	if statusCode != 0 {
		msg = fmt.Sprintf("unexpected status %d", statusCode)
	}
	return &Error{
		Code:       CodeTransport,
		Message:    msg,
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewPrecondition reports a resource found in the wrong status before a mutation.
func NewPrecondition(expected, actual string) *Error {
	return &Error{
		Code:     CodePrecondition,
		Message:  fmt.Sprintf("resource state invalid: %s", actual),
		Expected: expected,
		Actual:   actual,
	}
}

// NewPostcondition reports a mutation whose response carried the wrong status.
func NewPostcondition(expected, actual string) *Error {
	return &Error{
		Code:     CodePostcondition,
		Message:  fmt.Sprintf("status could not be updated to %s (got %s)", expected, actual),
		Expected: expected,
		Actual:   actual,
	}
}

// NewReconciliation reports an event feed that shrank from previous to current.
func NewReconciliation(previous, current int) *Error {
	return &Error{
		Code:     CodeReconciliation,
		Message:  fmt.Sprintf("event feed shrank from %d to %d", previous, current),
		Expected: fmt.Sprintf(">=%d", previous),
		Actual:   fmt.Sprintf("%d", current),
	}
}

// CodeOf returns the fault code carried by err, or "" if err is not a fault.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsTransport returns true if err is a transport fault.
func IsTransport(err error) bool {
	return CodeOf(err) == CodeTransport
}

// IsPrecondition returns true if err is a precondition violation.
func IsPrecondition(err error) bool {
	return CodeOf(err) == CodePrecondition
}

// IsPostcondition returns true if err is a postcondition violation.
func IsPostcondition(err error) bool {
	return CodeOf(err) == CodePostcondition
}

// IsReconciliation returns true if err is a reconciliation fault.
func IsReconciliation(err error) bool {
	return CodeOf(err) == CodeReconciliation
}
