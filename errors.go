// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package qrtr

import "fmt"

// Kind classifies the errors this package returns, per the error taxonomy.
type Kind int

const (
	// SocketCreate means opening an AF_QIPCRTR datagram socket failed. Fatal
	// to the owning Observer or Client.
	SocketCreate Kind = iota + 1

	// SocketIO means a send, recv, or getsockname call failed. Fatal to the
	// owning Observer; per-call for a Client.
	SocketIO

	// Timeout means Create or WaitForNode's deadline elapsed.
	Timeout

	// Cancelled means an external cancellation fired first.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case SocketCreate:
		return "SocketCreate"
	case SocketIO:
		return "SocketIO"
	case Timeout:
		return "Timeout"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the error type returned synchronously from this package's public
// operations. InvariantViolation conditions (§7) never surface this way:
// they are logged by the decoder and otherwise swallowed, per spec.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qrtr: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("qrtr: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for the same Kind, so callers
// can write errors.Is(err, qrtr.ErrTimeout). A bare Kind is not an error;
// the Err* sentinels below are errKind values, which is what Is compares
// against.
func (e *Error) Is(target error) bool {
	ek, ok := target.(errKind)
	if !ok {
		return false
	}
	return e.Kind == Kind(ek)
}

// errKind lets a bare Kind be used with errors.Is (e.g. errors.Is(err,
// qrtr.ErrTimeout)).
type errKind Kind

func (k errKind) Error() string { return Kind(k).String() }

// Sentinel errors for use with errors.Is against values returned by this
// package's operations.
var (
	ErrSocketCreate = errKind(SocketCreate)
	ErrSocketIO     = errKind(SocketIO)
	ErrTimeout      = errKind(Timeout)
	ErrCancelled    = errKind(Cancelled)
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// errNotQrtrSockaddr indicates getsockname returned an address that wasn't
// the AF_QIPCRTR tuple we expect; it should never happen for a
// correctly-opened socket and is treated as a SocketIO error.
var errNotQrtrSockaddr = fmt.Errorf("qrtr: kernel returned a non-AF_QIPCRTR address")
