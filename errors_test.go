package zsock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multifrost/zsock/engine"
)

// TestMapErrno_Table checks the errno to kind mapping per operation
func TestMapErrno_Table(t *testing.T) {
	tests := []struct {
		errno engine.Errno
		op    string
		flags Flag
		want  Kind
	}{
		{engine.EAGAIN, opSend, DontWait, KindWouldBlock},
		{engine.EAGAIN, opRecv, 0, KindTimeout},
		{engine.EADDRINUSE, opBind, 0, KindAddressInUse},
		{engine.ENOENT, opConnect, 0, KindAddressUnresolvable},
		{engine.ENOENT, opUnbind, 0, KindInvalidState},
		{engine.ENOENT, opDisconnect, 0, KindInvalidState},
		{engine.EADDRNOTAVAIL, opBind, 0, KindAddressUnresolvable},
		{engine.ENODEV, opBind, 0, KindAddressUnresolvable},
		{engine.ECONNREFUSED, opConnect, 0, KindAddressUnresolvable},
		{engine.EACCES, opBind, 0, KindPermissionDenied},
		{engine.EMFILE, opSocket, 0, KindResourceLimitExceeded},
		{engine.ENOMEM, opSocket, 0, KindResourceLimitExceeded},
		{engine.EINTR, opPoll, 0, KindInterrupted},
		{engine.EFSM, opSend, 0, KindInvalidState},
		{engine.ENOTSUP, opSetOption, 0, KindConfigurationRejected},
		{engine.ENOTSUP, opUnbind, 0, KindInvalidState},
		{engine.ENOTSOCK, opRecv, 0, KindSocketClosed},
		{engine.ETERM, opRecv, 0, KindContextTerminated},
		{engine.EINVAL, opSetOption, 0, KindConfigurationRejected},
		{engine.EINVAL, opBind, 0, KindInvalidEndpoint},
		{engine.EINVAL, opSend, 0, KindInvalidState},
		{engine.EPROTONOSUPPORT, opBind, 0, KindInvalidEndpoint},
		{engine.ENOCOMPATPROTO, opConnect, 0, KindInvalidEndpoint},
		{engine.EHOSTUNREACH, opSend, 0, KindHostUnreachable},
		{engine.EIO, opSend, 0, KindHostUnreachable},
		{engine.EIO, opConnect, 0, KindAddressUnresolvable},
	}
	for _, tt := range tests {
		t.Run(tt.errno.Error()+"/"+tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrno(tt.errno, tt.op, tt.flags))
		})
	}
}

// TestWrapEngine_KeepsCause wraps engine errors without losing the errno
func TestWrapEngine_KeepsCause(t *testing.T) {
	cause := engine.Errorf(engine.EADDRINUSE, "tcp://127.0.0.1:5555")
	err := wrapEngine(opBind, 0, cause)

	assert.Equal(t, KindAddressInUse, err.Kind)
	assert.Equal(t, engine.EADDRINUSE, err.Errno)
	assert.ErrorIs(t, err, ErrAddressInUse)
	assert.ErrorIs(t, err, engine.EADDRINUSE)
	assert.Contains(t, err.Error(), "bind")
	assert.Contains(t, err.Error(), "address in use")

	t.Run("already structured", func(t *testing.T) {
		inner := newError(KindTimeout, opRecv, "slow")
		assert.Same(t, inner, wrapEngine(opRecv, 0, inner))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, wrapEngine(opRecv, 0, nil))
	})
}

// TestError_IsMatchesKindOnly matches sentinels but not other errors
func TestError_IsMatchesKindOnly(t *testing.T) {
	err := &Error{Kind: KindConfigurationRejected, Op: opSetOption, Option: OptionLinger, Reason: "negative duration"}

	assert.True(t, errors.Is(err, ErrConfigurationRejected))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, &Error{Kind: KindConfigurationRejected, Option: OptionSendHWM}))
	assert.Equal(t, "zsock: set option linger: configuration rejected: negative duration", err.Error())

	var zerr *Error
	require.True(t, errors.As(err, &zerr))
	assert.Equal(t, OptionLinger, zerr.Option)
}

// TestIsFatal separates terminal kinds from recoverable ones
func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrResourceLimitExceeded))
	assert.True(t, IsFatal(&Error{Kind: KindContextTerminated, Op: opRecv}))
	assert.False(t, IsFatal(ErrWouldBlock))
	assert.False(t, IsFatal(ErrTimeout))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "unknown error", Kind(99).String())
}
