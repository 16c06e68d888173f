package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return fmt.Sprintf("%s: %s", err.Fields[0].Field, err.Fields[0].Error)
		}
		return ""
	}
	return err.Err.Error()
}

// ErrorKind classifies a DomainError. The API layer maps each kind to exactly one status code.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindBusy
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindBusy:
		return "busy"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// DomainError is a typed failure returned by the services.
// Reason is a stable machine-readable string; Message is meant for humans.
type DomainError struct {
	Kind    ErrorKind
	Reason  string
	Message string
	Err     error // underlying cause, if any
}

func NewDomainError(kind ErrorKind, reason, msg string) *DomainError {
	return &DomainError{Kind: kind, Reason: reason, Message: msg}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is makes errors.Is match on kind and reason so that wrapped copies (see NewPersistenceError)
// compare equal to their sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

var (
	ErrBusy        = NewDomainError(KindBusy, "busy", "resource is busy, retry later")
	ErrPersistence = NewDomainError(KindPersistence, "persistence_unavailable", "storage unavailable")
	ErrForbidden   = NewDomainError(KindForbidden, "forbidden", "permission denied")
)

// NewPersistenceError marks err as a storage availability failure.
func NewPersistenceError(err error) error {
	return &DomainError{Kind: KindPersistence, Reason: ErrPersistence.Reason, Message: ErrPersistence.Message, Err: err}
}

// AsDomainError returns the DomainError at the root of err, if any.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
