package taverna

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that need to react to it, mostly the
// HTTP layer picking a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindValidation
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code returned to API clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same kind and message, so sentinel
// errors below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Forbidden reports an authenticated caller lacking the required role.
func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

// Conflict reports a request that clashes with current state.
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// Invalid reports malformed or missing input.
func Invalid(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// Unauthenticated reports missing or invalid credentials.
func Unauthenticated(format string, args ...any) *Error {
	return newError(KindAuth, format, args...)
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message for err. Unclassified errors get
// a generic message so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}

var (
	ErrNotMember      = Forbidden("you are not a member of this campaign")
	ErrNotDM          = Forbidden("only the dungeon master can do that")
	ErrNotAdmin       = Forbidden("admin access required")
	ErrCampaignFull   = Conflict("campaign is full")
	ErrAlreadyMember  = Conflict("already a member of this campaign")
	ErrSessionEnded   = Conflict("session has ended")
	ErrInvalidFormula = Invalid("dice formula must look like 2d6+3")
)
