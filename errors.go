package mutablechannel

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code classifies an error returned by the channel protocol, per the
// subsystem's error taxonomy. Every public operation that can fail returns
// an error satisfying errors.As to *Error with one of these codes, except
// where Go's own idioms are a better fit (e.g. a plain context error from a
// caller-supplied context).
type Code int

const (
	// NotFound: operation referenced an unregistered channel.
	NotFound Code = iota + 1
	// Invalid: protocol misuse, such as double-registration of the same
	// role, or a release without a matching acquire.
	Invalid
	// InvalidArgument: payload exceeds the region's allocated size.
	InvalidArgument
	// IoError: the header's error flag is set. The flag is sticky for the
	// life of the region; registering the channel again does not clear it,
	// since an existing channel keeps its original region.
	IoError
	// NotImplemented: the host platform lacks named semaphores or shared
	// memory support.
	NotImplemented
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "NotFound"
	case Invalid:
		return "Invalid"
	case InvalidArgument:
		return "InvalidArgument"
	case IoError:
		return "IoError"
	case NotImplemented:
		return "NotImplemented"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the concrete error type returned throughout this package.
type Error struct {
	Code Code
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mutablechannel: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("mutablechannel: %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr constructs an *Error, optionally wrapping cause.
func newErr(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the Code carried by err, if any, via errors.As.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsIoError reports whether err is (or wraps) an IoError, the relay pump's
// clean-shutdown signal.
func IsIoError(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == IoError
}

// GRPCCode maps c to the closest standard grpc status code. Exported so
// relay/handler.go can translate a *Error at the RPC boundary without this
// package importing google.golang.org/grpc/status itself.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case NotFound:
		return codes.NotFound
	case Invalid:
		return codes.FailedPrecondition
	case InvalidArgument:
		return codes.InvalidArgument
	case IoError:
		return codes.Unavailable
	case NotImplemented:
		return codes.Unimplemented
	default:
		return codes.Unknown
	}
}

// ErrUnsupported is returned by ShmObjectStore's CreateMutableObject and
// GetMutableObject on platforms lacking shared-memory support. NewManager,
// NewMemRegion and the Manager's operations are not gated on the platform;
// without futex support the semaphores wait by yielding instead.
var ErrUnsupported = newErr(NotImplemented, nil, "named semaphores and shared memory are not supported on this platform")
