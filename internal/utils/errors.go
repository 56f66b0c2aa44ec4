package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that decide how to surface it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation blocks an action before any remote call.
	KindValidation
	// KindRemote is a network or backend failure.
	KindRemote
	// KindMalformed is persisted data that could not be decoded.
	KindMalformed
	// KindNotFound means the requested record does not exist.
	KindNotFound
	// KindNotConfigured means an optional collaborator is disabled.
	KindNotConfigured
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindMalformed:
		return "malformed"
	case KindNotFound:
		return "not_found"
	case KindNotConfigured:
		return "not_configured"
	default:
		return "unknown"
	}
}

// Error carries a Kind, the operation that failed and a human readable message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a Kind and operation to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
