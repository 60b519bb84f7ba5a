package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("unavailable")
	ErrInvalidSigningKey = errors.New("invalid signing key")
	ErrInvalidHash       = errors.New("invalid hash")
)

type ErrorCode string

const (
	CodeMissingAuthHeader   ErrorCode = "MISSING_AUTH_HEADER"
	CodeInvalidToken        ErrorCode = "INVALID_TOKEN"
	CodeExpiredToken        ErrorCode = "EXPIRED_TOKEN"
	CodeInvalidMessage      ErrorCode = "INVALID_MESSAGE"
	CodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeAccountPending      ErrorCode = "ACCOUNT_PENDING"
	CodeChannelNotFound     ErrorCode = "CHANNEL_NOT_FOUND"
	CodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeHubSubmissionFailed ErrorCode = "HUB_SUBMISSION_FAILED"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodePolicyDenied        ErrorCode = "POLICY_DENIED"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is the typed failure carried through every request stage. Message is
// safe to return to clients; Err is kept for logs only.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetail returns a copy of e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

// AsError extracts a *Error from err, converting anything else into an
// INTERNAL_ERROR that hides the underlying cause.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return WrapError(CodeInternal, "internal error", err)
}

func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}
