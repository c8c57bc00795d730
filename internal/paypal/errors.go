package paypal

import (
	"errors"
	"fmt"
)

const issueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// AuthError means the client credentials were rejected or the token call
// never completed.
type AuthError struct {
	HTTPStatus int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("paypal auth failed: %v", e.Err)
	}
	return fmt.Sprintf("paypal auth failed: %d %s", e.HTTPStatus, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError is any failed API call after authentication. HTTPStatus is 0
// when no response arrived (network error or timeout).
type RequestError struct {
	Operation        string
	HTTPStatus       int
	ProcessorMessage string
	Issues           []string
	DebugID          string
	Err              error
}

func (e *RequestError) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("paypal %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("paypal %s: %d %s", e.Operation, e.HTTPStatus, e.ProcessorMessage)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) hasIssue(issue string) bool {
	for _, i := range e.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// IsAlreadyCaptured reports whether err is the processor telling us the order
// had been captured before.
func IsAlreadyCaptured(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.HTTPStatus == 422 && reqErr.hasIssue(issueOrderAlreadyCaptured)
}
