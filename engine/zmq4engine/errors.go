package zmq4engine

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/multifrost/zsock/engine"
)

var syscallErrnos = []struct {
	sys   syscall.Errno
	errno engine.Errno
}{
	{syscall.EADDRINUSE, engine.EADDRINUSE},
	{syscall.EADDRNOTAVAIL, engine.EADDRNOTAVAIL},
	{syscall.ECONNREFUSED, engine.ECONNREFUSED},
	{syscall.EACCES, engine.EACCES},
	{syscall.EPERM, engine.EACCES},
	{syscall.EHOSTUNREACH, engine.EHOSTUNREACH},
	{syscall.ENETUNREACH, engine.EHOSTUNREACH},
	{syscall.EMFILE, engine.EMFILE},
	{syscall.ENFILE, engine.EMFILE},
	{syscall.ENOMEM, engine.ENOMEM},
	{syscall.ENOENT, engine.ENOENT},
}

// translate attaches an engine errno to an error returned by zmq4 or the
// network stack underneath it.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var errno engine.Errno
	if errors.As(err, &errno) {
		return err
	}
	for _, e := range syscallErrnos {
		if errors.Is(err, e.sys) {
			return engine.Wrap(e.errno, err)
		}
	}

	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	switch {
	case errors.As(err, &dnsErr):
		return engine.Wrap(engine.ENOENT, err)
	case errors.As(err, &addrErr):
		return engine.Wrap(engine.EINVAL, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return engine.Wrap(engine.EAGAIN, err)
	case errors.Is(err, context.Canceled):
		return engine.Wrap(engine.ETERM, err)
	case errors.Is(err, os.ErrPermission):
		return engine.Wrap(engine.EACCES, err)
	}
	return engine.Wrap(engine.EIO, err)
}
