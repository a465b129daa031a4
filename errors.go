package zsock

import (
	"errors"
	"strings"

	"github.com/multifrost/zsock/engine"
)

// Kind classifies every error returned by this package.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidEndpoint
	KindAddressInUse
	KindAddressUnresolvable
	KindPermissionDenied
	KindResourceLimitExceeded
	KindWouldBlock
	KindTimeout
	KindInterrupted
	KindInvalidState
	KindSocketClosed
	KindContextTerminated
	KindConfigurationRejected
	KindHandshakeFailed
	KindHostUnreachable
)

var kindNames = [...]string{
	KindUnknown:               "unknown error",
	KindInvalidEndpoint:       "invalid endpoint",
	KindAddressInUse:          "address in use",
	KindAddressUnresolvable:   "address unresolvable",
	KindPermissionDenied:      "permission denied",
	KindResourceLimitExceeded: "resource limit exceeded",
	KindWouldBlock:            "would block",
	KindTimeout:               "timeout",
	KindInterrupted:           "interrupted",
	KindInvalidState:          "invalid state",
	KindSocketClosed:          "socket closed",
	KindContextTerminated:     "context terminated",
	KindConfigurationRejected: "configuration rejected",
	KindHandshakeFailed:       "handshake failed",
	KindHostUnreachable:       "host unreachable",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Error is the structured error of every fallible operation. Errors compare
// equal under errors.Is to the sentinel of their Kind.
type Error struct {
	Kind     Kind
	Op       string
	Option   string
	Endpoint string
	Reason   string
	Errno    engine.Errno
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("zsock: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Endpoint != "" {
			b.WriteString(" " + e.Endpoint)
		}
		if e.Option != "" {
			b.WriteString(" " + e.Option)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Option == "" && t.Endpoint == ""
}

var (
	ErrInvalidEndpoint       = &Error{Kind: KindInvalidEndpoint}
	ErrAddressInUse          = &Error{Kind: KindAddressInUse}
	ErrAddressUnresolvable   = &Error{Kind: KindAddressUnresolvable}
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied}
	ErrResourceLimitExceeded = &Error{Kind: KindResourceLimitExceeded}
	ErrWouldBlock            = &Error{Kind: KindWouldBlock}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrInterrupted           = &Error{Kind: KindInterrupted}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrSocketClosed          = &Error{Kind: KindSocketClosed}
	ErrContextTerminated     = &Error{Kind: KindContextTerminated}
	ErrConfigurationRejected = &Error{Kind: KindConfigurationRejected}
	ErrHandshakeFailed       = &Error{Kind: KindHandshakeFailed}
	ErrHostUnreachable       = &Error{Kind: KindHostUnreachable}
)

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err leaves the object that returned it unusable.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindResourceLimitExceeded, KindContextTerminated:
		return true
	}
	return false
}

// Operation names used in Error.Op.
const (
	opContext    = "context"
	opSocket     = "socket"
	opBind       = "bind"
	opConnect    = "connect"
	opUnbind     = "unbind"
	opDisconnect = "disconnect"
	opSend       = "send"
	opRecv       = "recv"
	opSetOption  = "set option"
	opGetOption  = "get option"
	opClose      = "close"
	opPoll       = "poll"
	opMonitor    = "monitor"
)

func isEndpointOp(op string) bool {
	switch op {
	case opBind, opConnect, opUnbind, opDisconnect:
		return true
	}
	return false
}

func isOptionOp(op string) bool {
	return op == opSetOption || op == opGetOption || op == opContext
}

// mapErrno decides the Kind for an engine errno raised by op.
func mapErrno(errno engine.Errno, op string, flags Flag) Kind {
	switch errno {
	case engine.EAGAIN:
		if flags&DontWait != 0 {
			return KindWouldBlock
		}
		return KindTimeout
	case engine.EADDRINUSE:
		return KindAddressInUse
	case engine.ENOENT:
		if op == opUnbind || op == opDisconnect {
			return KindInvalidState
		}
		return KindAddressUnresolvable
	case engine.EADDRNOTAVAIL, engine.ENODEV, engine.ECONNREFUSED:
		return KindAddressUnresolvable
	case engine.EACCES:
		return KindPermissionDenied
	case engine.EMFILE, engine.ENOMEM:
		return KindResourceLimitExceeded
	case engine.EINTR:
		return KindInterrupted
	case engine.EFSM:
		return KindInvalidState
	case engine.ENOTSUP:
		if isOptionOp(op) {
			return KindConfigurationRejected
		}
		return KindInvalidState
	case engine.ENOTSOCK:
		return KindSocketClosed
	case engine.ETERM:
		return KindContextTerminated
	case engine.EINVAL:
		switch {
		case isOptionOp(op):
			return KindConfigurationRejected
		case isEndpointOp(op):
			return KindInvalidEndpoint
		}
		return KindInvalidState
	case engine.EPROTONOSUPPORT, engine.ENOCOMPATPROTO:
		return KindInvalidEndpoint
	case engine.EHOSTUNREACH:
		return KindHostUnreachable
	case engine.EIO:
		switch {
		case op == opSend || op == opRecv:
			return KindHostUnreachable
		case isEndpointOp(op):
			return KindAddressUnresolvable
		}
	}
	return KindInvalidState
}

// wrapEngine converts an engine error into an *Error for op.
func wrapEngine(op string, flags Flag, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	errno := engine.ErrnoOf(err)
	return &Error{
		Kind:  mapErrno(errno, op, flags),
		Op:    op,
		Errno: errno,
		Err:   err,
	}
}

func newError(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}
