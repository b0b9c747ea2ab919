// Package apperr defines the error taxonomy shared by the room services,
// the socket handlers and the HTTP controllers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindFatal      Kind = "fatal"
)

// Stable error codes sent to clients
const (
	CodeRoomNotFound            = "ROOM_NOT_FOUND"
	CodeRoomFull                = "ROOM_FULL"
	CodeRoomNotAvailable        = "ROOM_NOT_AVAILABLE"
	CodeRoomCreationFailed      = "ROOM_CREATION_FAILED"
	CodeNotAMember              = "NOT_A_MEMBER"
	CodeNotHost                 = "NOT_HOST"
	CodeForbidden               = "FORBIDDEN"
	CodeInvalidPasscode         = "INVALID_PASSCODE"
	CodeInvalidPayload          = "INVALID_PAYLOAD"
	CodeInvalidRoomCode         = "INVALID_ROOM_CODE"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeNotIdentified           = "NOT_IDENTIFIED"
	CodePersistenceFailed       = "PERSISTENCE_FAILED"
	CodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
	CodeUpstreamError           = "UPSTREAM_ERROR"
	CodeStartupFailed           = "STARTUP_FAILED"
)

// Error carries a kind, a stable code, a human readable message and optional
// details that let a client decide whether to retry.
type Error struct {
	Kind    Kind
	Code    string
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by code, so errors.Is(err, &Error{Code: CodeRoomFull}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns the error with one more detail entry
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func NotFound(code, message string) *Error   { return New(KindNotFound, code, message) }
func Conflict(code, message string) *Error   { return New(KindConflict, code, message) }
func Forbidden(code, message string) *Error  { return New(KindForbidden, code, message) }
func Validation(code, message string) *Error { return New(KindValidation, code, message) }

func Transient(code, message string, err error) *Error {
	return Wrap(KindTransient, code, message, err)
}

func Fatal(code, message string, err error) *Error {
	return Wrap(KindFatal, code, message, err)
}

// As extracts an *Error from err. Errors outside the taxonomy come back as
// a transient internal error so callers always have a code to report.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindTransient, "INTERNAL", "internal error", err)
}

// KindOf returns the kind of err, or the empty kind for nil
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// HTTPStatus maps an error kind to the status code used by the HTTP surface
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
