// Package errs defines the error kinds shared by the transfer tool and engine.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrInvalidArgument indicates bad construction parameters, missing paths or malformed flags
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConnection indicates every connect candidate failed or a bind/listen failure
	ErrConnection = errors.New("connection error")

	// ErrProtocol indicates the stream ended mid-header or mid-payload
	ErrProtocol = errors.New("protocol error")

	// ErrIO indicates a local file open, seek, read or write failure
	ErrIO = errors.New("i/o error")

	// ErrManagerStopped indicates a job was submitted after the pool began draining
	ErrManagerStopped = errors.New("transfer manager stopped")
)

// Error carries the kind of failure together with the operation and its cause
type Error struct {
	Kind error  // one of the kinds above
	Op   string // operation that failed
	Err  error  // underlying error, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an Error of the given kind wrapping err
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns an Error of the given kind with a formatted operation message and no cause
func Newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidArgument, ErrConnection, ErrProtocol, ErrIO, ErrManagerStopped} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
