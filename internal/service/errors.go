package service

import (
	"errors"
	"fmt"
)

// Kind names the class of a failed operation so the transport layer can map it to a
// user-facing status without inspecting messages.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidEmail Kind = "invalid_email"
	KindDuplicate    Kind = "duplicate"
	KindFull         Kind = "full"
	KindInvalidSlot  Kind = "invalid_slot"
	KindStorage      Kind = "storage_error"
	KindInvalidEvent Kind = "invalid_event"
)

// Error is the tagged error returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrFull) works on
// errors carrying their own message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidEmail = &Error{Kind: KindInvalidEmail}
	ErrDuplicate    = &Error{Kind: KindDuplicate}
	ErrFull         = &Error{Kind: KindFull}
	ErrInvalidSlot  = &Error{Kind: KindInvalidSlot}
	ErrStorage      = &Error{Kind: KindStorage}
	ErrInvalidEvent = &Error{Kind: KindInvalidEvent}
)

// KindOf returns the kind of err, or KindStorage for anything untagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
