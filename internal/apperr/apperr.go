// Package apperr defines the error kinds every layer returns so callers can
// branch on the failure instead of parsing message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConstraintViolation
	KindPaymentFailed
	KindPaymentRequiresAction
	KindBookedPendingRetry
	KindStoreUnavailable
	KindProcessorUnavailable
)

var codes = map[Kind]string{
	KindInternal:              "INTERNAL",
	KindValidation:            "VALIDATION_ERROR",
	KindNotFound:              "NOT_FOUND",
	KindConstraintViolation:   "CONSTRAINT_VIOLATION",
	KindPaymentFailed:         "PAYMENT_FAILED",
	KindPaymentRequiresAction: "PAYMENT_REQUIRES_ACTION",
	KindBookedPendingRetry:    "BOOKED_PENDING_RETRY",
	KindStoreUnavailable:      "STORE_UNAVAILABLE",
	KindProcessorUnavailable:  "PAYMENT_PROCESSOR_UNAVAILABLE",
}

// Code is the stable identifier exposed to clients.
func (k Kind) Code() string {
	if c, ok := codes[k]; ok {
		return c
	}
	return codes[KindInternal]
}

func (k Kind) String() string { return k.Code() }

// HTTPStatus maps a kind onto the status used by the plain HTTP endpoints.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConstraintViolation:
		return http.StatusConflict
	case KindPaymentFailed:
		return http.StatusPaymentRequired
	case KindPaymentRequiresAction:
		return http.StatusAccepted
	case KindBookedPendingRetry:
		return http.StatusAccepted
	case KindStoreUnavailable, KindProcessorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Code()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Extensions is picked up by graphql-go and rendered into the error entry.
// Internal causes are never exposed, only the code of a wrapped kinded error.
func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Kind.Code()}
	var cause *Error
	if e.Err != nil && errors.As(e.Err, &cause) && cause.Kind != e.Kind {
		ext["cause"] = cause.Kind.Code()
	}
	return ext
}

// PublicMessage is the text safe to show a client.
func (e *Error) PublicMessage() string {
	if e.Kind == KindInternal {
		return "internal error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Code()
}

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

func NotFound(op, what string) *Error {
	return New(KindNotFound, op, what+" not found")
}

func Constraint(op, msg string, err error) *Error {
	return &Error{Kind: KindConstraintViolation, Op: op, Message: msg, Err: err}
}

// KindOf returns the kind of the outermost kinded error in the chain, or
// KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any kinded error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Public converts err into a client-safe kinded error. Errors without a kind
// become KindInternal and lose their message.
func Public(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return &Error{Kind: KindInternal, Message: "internal error"}
	}
	out := &Error{Kind: e.Kind, Message: e.PublicMessage()}
	var cause *Error
	if e.Err != nil && errors.As(e.Err, &cause) && cause.Kind != e.Kind {
		out.Err = &Error{Kind: cause.Kind, Message: cause.PublicMessage()}
	}
	return out
}
