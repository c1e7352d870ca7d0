package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModeling indicates that a workflow invariant was violated: a dangling
	// connection, an unresolved placed operator, an incompatible container pairing.
	ErrModeling = errors.New("modeling error")

	// ErrConversion indicates that a parameter or port could not be read from the engine graph
	ErrConversion = errors.New("conversion error")

	// ErrTransport indicates that the optimizer session could not connect, submit or decode
	ErrTransport = errors.New("transport error")

	// ErrTimeout indicates that no correlated optimizer response arrived in time
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates that a cooperative stop was observed
	ErrCancelled = errors.New("operation cancelled")

	// ErrNotConnected indicates that the optimizer session is not open
	ErrNotConnected = errors.New("not connected to optimizer")
)

// Kind classifies an Error. Each kind maps to one of the sentinel errors above.
type Kind int

const (
	KindModeling Kind = iota
	KindConversion
	KindTransport
	KindTimeout
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindModeling:
		return "MODELING"
	case KindConversion:
		return "CONVERSION"
	case KindTransport:
		return "TRANSPORT"
	case KindTimeout:
		return "TIMEOUT"
	case KindCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindModeling:
		return ErrModeling
	case KindConversion:
		return ErrConversion
	case KindTransport:
		return ErrTransport
	case KindTimeout:
		return ErrTimeout
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Error represents a structured error
type Error struct {
	// Kind places the error in the taxonomy
	Kind Kind

	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Names lists the offending operator, port or container names, if any
	Names []string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Names) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's kind
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// NewError creates a new error of the given kind
func NewError(kind Kind, code, message string, err error, names ...string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Names:   names,
		Err:     err,
	}
}

// NewModelingError creates an error for a violated workflow invariant
func NewModelingError(code, message string, names ...string) *Error {
	return NewError(KindModeling, code, message, nil, names...)
}

// NewConversionError creates an error for an unreadable engine graph element
func NewConversionError(code, message string, err error, names ...string) *Error {
	return NewError(KindConversion, code, message, err, names...)
}

// NewTransportError creates an error for an optimizer session failure
func NewTransportError(code, message string, err error) *Error {
	return NewError(KindTransport, code, message, err)
}

// NewTimeoutError creates an error for an elapsed wait
func NewTimeoutError(code, message string) *Error {
	return NewError(KindTimeout, code, message, nil)
}

// NewCancelledError creates an error for an observed stop request
func NewCancelledError(code, message string, err error) *Error {
	return NewError(KindCancelled, code, message, err)
}

// IsModeling checks if an error is a modeling error
func IsModeling(err error) bool {
	return errors.Is(err, ErrModeling)
}

// IsConversion checks if an error is a conversion error
func IsConversion(err error) bool {
	return errors.Is(err, ErrConversion)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCancelled checks if an error is a cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
