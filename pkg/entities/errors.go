package entities

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindInvalidOperation
	KindAuthentication
	KindAccessDenied
	KindForbidden
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindAuthentication:
		return "authentication"
	case KindAccessDenied:
		return "access_denied"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "unexpected"
	}
}

// HTTPStatus maps the kind to the status code returned by the API.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidOperation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAccessDenied, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type use cases return to controllers and the gateway.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidOperationError(format string, args ...any) *AppError {
	return &AppError{Kind: KindInvalidOperation, Message: fmt.Sprintf(format, args...)}
}

func NewAuthenticationError(format string, args ...any) *AppError {
	return &AppError{Kind: KindAuthentication, Message: fmt.Sprintf(format, args...)}
}

func NewAccessDeniedError(format string, args ...any) *AppError {
	return &AppError{Kind: KindAccessDenied, Message: fmt.Sprintf(format, args...)}
}

func NewForbiddenError(format string, args ...any) *AppError {
	return &AppError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewUnexpectedError(message string, err error) *AppError {
	return &AppError{Kind: KindUnexpected, Message: message, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain. Errors that
// are not AppErrors are unexpected.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// PublicMessage is the message safe to show to a client.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

var (
	ErrEditWindowExpired = NewForbiddenError("edit time limit exceeded")
	ErrNotMessageSender  = NewForbiddenError("only the sender can modify this message")
	ErrMutedInGroup      = NewForbiddenError("you are muted in this group")
	ErrBlockedRecipient  = NewAccessDeniedError("message cannot be delivered to this conversation")
)
