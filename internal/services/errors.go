package services

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/example/cyclebees/internal/utils"
)

// ErrorKind classifies a domain error for transport mapping.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindCoupon            ErrorKind = "coupon"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// Coupon error codes.
const (
	CodeCouponNotFound     = "CouponNotFound"
	CodeCouponExpired      = "CouponExpired"
	CodeCouponExhausted    = "CouponExhausted"
	CodeBelowMinimumAmount = "BelowMinimumAmount"
	CodeNotApplicable      = "NotApplicable"
	CodeInvalidTransition  = "InvalidTransition"
)

// Error is the typed result returned by services for expected failures.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Fields  []utils.FieldError

	// From and To are set for invalid transitions.
	From string
	To   string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// ValidationError reports malformed or missing input.
func ValidationError(message string, fields ...utils.FieldError) *Error {
	return &Error{Kind: KindValidation, Code: "ValidationError", Message: message, Fields: fields}
}

// NotFoundError reports a missing entity.
func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NotFound", Message: message}
}

// UnauthorizedError reports missing or invalid credentials.
func UnauthorizedError(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "Unauthorized", Message: message}
}

// ForbiddenError reports a caller without the required role.
func ForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "Forbidden", Message: message}
}

// ConflictError reports a lost race against a concurrent write.
func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Code: "Conflict", Message: message}
}

// CouponError reports why a coupon cannot be applied.
func CouponError(code, message string) *Error {
	return &Error{Kind: KindCoupon, Code: code, Message: message}
}

// InvalidTransitionError reports an illegal status change.
func InvalidTransitionError(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot change status from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

// InternalError wraps an unexpected store or runtime failure.
func InternalError(err error, op string) *Error {
	return &Error{Kind: KindInternal, Code: "InternalError", Message: op, cause: err}
}

// AsError extracts a service error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err is a service error with the given code.
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsKind reports whether err is a service error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// wrapStore turns a raw store error into an internal error, leaving service errors untouched.
func wrapStore(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return InternalError(errors.Wrap(err, op), op)
}
