package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed transition.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthorized: action not permitted for the role and status.
	KindUnauthorized
	// KindValidation: missing reason or malformed input, caught before the network.
	KindValidation
	// KindConflict: version mismatch, another actor mutated the entity first.
	KindConflict
	// KindRuleViolation: the server rejected the action for a domain reason.
	KindRuleViolation
	// KindTransport: the service could not be reached or answered unusably.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict"
	case KindRuleViolation:
		return "rule_violation"
	case KindTransport:
		return "transport_failure"
	}
	return "unknown"
}

// FieldError is a field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed failure returned by every lifecycle operation.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	// Status is the HTTP status of a server rejection, zero for local failures.
	Status int
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, " [%s: %s]", f.Field, f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrRuleViolation = &Error{Kind: KindRuleViolation}
	ErrTransport     = &Error{Kind: KindTransport}
)

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Unauthorizedf builds a KindUnauthorized error.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// FieldValidation builds a KindValidation error for a single field.
func FieldValidation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "validation failed",
		Fields:  []FieldError{{Field: field, Message: message}},
	}
}

// Conflictf builds a KindConflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// RuleViolation wraps a server-provided message verbatim.
func RuleViolation(status int, message string) *Error {
	return &Error{Kind: KindRuleViolation, Status: status, Message: message}
}

// Transport wraps a request-layer failure.
func Transport(err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf(format, args...), Err: err}
}

// UserMessage returns the actionable message shown to the actor.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	switch e.Kind {
	case KindConflict:
		return "This record was changed by someone else. Reload and retry."
	case KindRuleViolation:
		return e.Message
	case KindTransport:
		return "The service is unavailable. Please try again."
	case KindUnauthorized:
		return "You are not permitted to perform this action."
	case KindValidation:
		if len(e.Fields) > 0 {
			return e.Fields[0].Message
		}
		return e.Message
	}
	return e.Message
}
