package engine

import (
	"errors"
	"fmt"
	"syscall"
)

// Errno is the numeric error surface of an engine. POSIX values come from the
// host platform; the ZeroMQ specific codes sit above the libzmq base number.
type Errno int

const hausnumero = 156384712

const (
	EAGAIN          = Errno(syscall.EAGAIN)
	EINVAL          = Errno(syscall.EINVAL)
	EINTR           = Errno(syscall.EINTR)
	EIO             = Errno(syscall.EIO)
	ENOENT          = Errno(syscall.ENOENT)
	ENOMEM          = Errno(syscall.ENOMEM)
	EACCES          = Errno(syscall.EACCES)
	EMFILE          = Errno(syscall.EMFILE)
	ENODEV          = Errno(syscall.ENODEV)
	ENOTSUP         = Errno(syscall.ENOTSUP)
	ENOTSOCK        = Errno(syscall.ENOTSOCK)
	EPROTONOSUPPORT = Errno(syscall.EPROTONOSUPPORT)
	EADDRINUSE      = Errno(syscall.EADDRINUSE)
	EADDRNOTAVAIL   = Errno(syscall.EADDRNOTAVAIL)
	ECONNREFUSED    = Errno(syscall.ECONNREFUSED)
	EHOSTUNREACH    = Errno(syscall.EHOSTUNREACH)

	EFSM           = Errno(hausnumero + 51)
	ENOCOMPATPROTO = Errno(hausnumero + 52)
	ETERM          = Errno(hausnumero + 53)
	EMTHREAD       = Errno(hausnumero + 54)
)

var errnoNames = map[Errno]string{
	EAGAIN:          "EAGAIN",
	EINVAL:          "EINVAL",
	EINTR:           "EINTR",
	EIO:             "EIO",
	ENOENT:          "ENOENT",
	ENOMEM:          "ENOMEM",
	EACCES:          "EACCES",
	EMFILE:          "EMFILE",
	ENODEV:          "ENODEV",
	ENOTSUP:         "ENOTSUP",
	ENOTSOCK:        "ENOTSOCK",
	EPROTONOSUPPORT: "EPROTONOSUPPORT",
	EADDRINUSE:      "EADDRINUSE",
	EADDRNOTAVAIL:   "EADDRNOTAVAIL",
	ECONNREFUSED:    "ECONNREFUSED",
	EHOSTUNREACH:    "EHOSTUNREACH",
	EFSM:            "EFSM",
	ENOCOMPATPROTO:  "ENOCOMPATPROTO",
	ETERM:           "ETERM",
	EMTHREAD:        "EMTHREAD",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Errorf wraps errno with a formatted detail message. errors.As recovers the
// Errno from the result.
func Errorf(errno Errno, format string, args ...any) error {
	return fmt.Errorf("%w: %s", errno, fmt.Sprintf(format, args...))
}

// Wrap attaches errno to a lower level error, keeping both in the chain.
func Wrap(errno Errno, err error) error {
	if err == nil {
		return errno
	}
	return fmt.Errorf("%w: %w", errno, err)
}

// ErrnoOf extracts the Errno carried by err. Errors without one report EIO.
func ErrnoOf(err error) Errno {
	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}
	return EIO
}
