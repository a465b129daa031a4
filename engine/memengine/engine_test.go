package memengine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/multifrost/zsock/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := NewContext(engine.ContextOptions{IOThreads: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Term() })
	return c
}

func newTestSocket(t *testing.T, c *Context, typ engine.SocketType) engine.Socket {
	t.Helper()
	s, err := c.NewSocket(typ)
	require.NoError(t, err)
	require.NoError(t, s.SetOption(engine.OptLinger, time.Duration(0)))
	return s
}

func sendAll(t *testing.T, s engine.Socket, frames ...string) {
	t.Helper()
	for i, f := range frames {
		var flags engine.Flag
		if i < len(frames)-1 {
			flags = engine.SendMore
		}
		require.NoError(t, s.Send([]byte(f), flags))
	}
}

func recvAll(t *testing.T, s engine.Socket) []string {
	t.Helper()
	var out []string
	for {
		f, more, err := s.Recv(0)
		require.NoError(t, err)
		out = append(out, string(f))
		if !more {
			return out
		}
	}
}

// TestReqRep_RoundTrip exercises the request/reply envelope handling
func TestReqRep_RoundTrip(t *testing.T) {
	c := newTestContext(t)
	rep := newTestSocket(t, c, engine.Rep)
	req := newTestSocket(t, c, engine.Req)

	require.NoError(t, rep.Bind("inproc://echo"))
	require.NoError(t, req.Connect("inproc://echo"))

	sendAll(t, req, "ping", "extra")
	assert.Equal(t, []string{"ping", "extra"}, recvAll(t, rep))

	sendAll(t, rep, "pong")
	assert.Equal(t, []string{"pong"}, recvAll(t, req))

	t.Run("send twice fails", func(t *testing.T) {
		sendAll(t, req, "one")
		err := req.Send([]byte("two"), 0)
		assert.Equal(t, engine.EFSM, engine.ErrnoOf(err))
		assert.Equal(t, []string{"one"}, recvAll(t, rep))
		sendAll(t, rep, "ok")
		assert.Equal(t, []string{"ok"}, recvAll(t, req))
	})

	t.Run("rep cannot send first", func(t *testing.T) {
		err := rep.Send([]byte("nope"), 0)
		assert.Equal(t, engine.EFSM, engine.ErrnoOf(err))
	})
}

// TestConnect_BeforeBind queues messages until the listener appears
func TestConnect_BeforeBind(t *testing.T) {
	c := newTestContext(t)
	push := newTestSocket(t, c, engine.Push)
	pull := newTestSocket(t, c, engine.Pull)

	require.NoError(t, push.Connect("tcp://localhost:5999"))
	sendAll(t, push, "early")

	require.NoError(t, pull.Bind("tcp://*:5999"))
	assert.Equal(t, []string{"early"}, recvAll(t, pull))
	assert.Equal(t, "tcp://127.0.0.1:5999", pull.LastEndpoint())
}

// TestBind_Errors covers duplicate and wildcard handling
func TestBind_Errors(t *testing.T) {
	c := newTestContext(t)
	a := newTestSocket(t, c, engine.Pull)
	b := newTestSocket(t, c, engine.Pull)

	require.NoError(t, a.Bind("inproc://taken"))
	err := b.Bind("inproc://taken")
	assert.Equal(t, engine.EADDRINUSE, engine.ErrnoOf(err))

	require.NoError(t, a.Bind("tcp://*:*"))
	assert.Contains(t, a.LastEndpoint(), "tcp://127.0.0.1:")

	err = b.Connect("tcp://127.0.0.1:*")
	assert.Equal(t, engine.EINVAL, engine.ErrnoOf(err))

	err = b.Bind("udp://x")
	assert.Equal(t, engine.EPROTONOSUPPORT, engine.ErrnoOf(err))

	err = b.Unbind("inproc://never")
	assert.Equal(t, engine.ENOENT, engine.ErrnoOf(err))
}

// TestPubSub_Filtering checks prefix matching and late joiners
func TestPubSub_Filtering(t *testing.T) {
	c := newTestContext(t)
	pub := newTestSocket(t, c, engine.Pub)
	sub := newTestSocket(t, c, engine.Sub)

	require.NoError(t, pub.Bind("inproc://news"))
	sendAll(t, pub, "weather", "before anyone listened")

	require.NoError(t, sub.SetOption(engine.OptSubscribe, []byte("wea")))
	require.NoError(t, sub.Connect("inproc://news"))

	sendAll(t, pub, "sports", "dropped")
	sendAll(t, pub, "weather", "sunny")

	assert.Equal(t, []string{"weather", "sunny"}, recvAll(t, sub))
	_, _, err := sub.Recv(engine.DontWait)
	assert.Equal(t, engine.EAGAIN, engine.ErrnoOf(err))

	t.Run("pub cannot receive", func(t *testing.T) {
		_, _, err := pub.Recv(engine.DontWait)
		assert.Equal(t, engine.ENOTSUP, engine.ErrnoOf(err))
	})
}

// TestRouter_Identity routes replies by peer identity
func TestRouter_Identity(t *testing.T) {
	c := newTestContext(t)
	router := newTestSocket(t, c, engine.Router)
	dealer := newTestSocket(t, c, engine.Dealer)

	require.NoError(t, dealer.SetOption(engine.OptIdentity, []byte("worker-1")))
	require.NoError(t, router.Bind("inproc://broker"))
	require.NoError(t, dealer.Connect("inproc://broker"))

	sendAll(t, dealer, "hello")
	assert.Equal(t, []string{"worker-1", "hello"}, recvAll(t, router))

	sendAll(t, router, "worker-1", "welcome")
	assert.Equal(t, []string{"welcome"}, recvAll(t, dealer))

	t.Run("unknown peer dropped", func(t *testing.T) {
		sendAll(t, router, "ghost", "lost")
	})

	t.Run("unknown peer mandatory", func(t *testing.T) {
		require.NoError(t, router.SetOption(engine.OptRouterMandatory, true))
		require.NoError(t, router.Send([]byte("ghost"), engine.SendMore))
		err := router.Send([]byte("lost"), 0)
		assert.Equal(t, engine.EHOSTUNREACH, engine.ErrnoOf(err))
	})
}

// TestServerClient_RoutingID replies to each client through its routing id
func TestServerClient_RoutingID(t *testing.T) {
	c := newTestContext(t)
	server := newTestSocket(t, c, engine.Server)
	a := newTestSocket(t, c, engine.Client)
	b := newTestSocket(t, c, engine.Client)

	require.NoError(t, server.Bind("inproc://server"))
	require.NoError(t, a.Connect("inproc://server"))
	require.NoError(t, b.Connect("inproc://server"))

	sendAll(t, a, "from-a")
	sendAll(t, b, "from-b")
	for i := 0; i < 2; i++ {
		got := recvAll(t, server)
		require.Len(t, got, 2)
		require.Len(t, got[0], 4)
		sendAll(t, server, got[0], "re:"+got[1])
	}
	assert.Equal(t, []string{"re:from-a"}, recvAll(t, a))
	assert.Equal(t, []string{"re:from-b"}, recvAll(t, b))

	t.Run("client messages are single part", func(t *testing.T) {
		require.NoError(t, a.Send([]byte("one"), engine.SendMore))
		err := a.Send([]byte("two"), 0)
		assert.Equal(t, engine.EINVAL, engine.ErrnoOf(err))
	})

	t.Run("unknown routing id", func(t *testing.T) {
		require.NoError(t, server.Send([]byte{0, 0, 0xff, 0xff}, engine.SendMore))
		err := server.Send([]byte("lost"), 0)
		assert.Equal(t, engine.EHOSTUNREACH, engine.ErrnoOf(err))
	})
}

// TestRadioDish_Groups delivers only to dishes that joined the group
func TestRadioDish_Groups(t *testing.T) {
	c := newTestContext(t)
	radio := newTestSocket(t, c, engine.Radio)
	dish := newTestSocket(t, c, engine.Dish)
	other := newTestSocket(t, c, engine.Dish)

	require.NoError(t, dish.SetOption(engine.OptJoin, []byte("weather")))
	require.NoError(t, other.SetOption(engine.OptJoin, []byte("sports")))
	require.NoError(t, radio.Bind("inproc://radio"))
	require.NoError(t, dish.Connect("inproc://radio"))
	require.NoError(t, other.Connect("inproc://radio"))

	sendAll(t, radio, "news", "ignored")
	sendAll(t, radio, "weather", "sunny")
	assert.Equal(t, []string{"weather", "sunny"}, recvAll(t, dish))
	_, _, err := other.Recv(engine.DontWait)
	assert.Equal(t, engine.EAGAIN, engine.ErrnoOf(err))

	t.Run("leave stops delivery", func(t *testing.T) {
		require.NoError(t, dish.SetOption(engine.OptLeave, []byte("weather")))
		sendAll(t, radio, "weather", "rain")
		_, _, err := dish.Recv(engine.DontWait)
		assert.Equal(t, engine.EAGAIN, engine.ErrnoOf(err))
	})

	t.Run("membership errors", func(t *testing.T) {
		for _, tc := range []struct {
			name  string
			sock  engine.Socket
			opt   string
			group string
		}{
			{"leave unknown", dish, engine.OptLeave, "weather"},
			{"join twice", other, engine.OptJoin, "sports"},
			{"empty group", dish, engine.OptJoin, ""},
			{"group too long", dish, engine.OptJoin, "abcdefghijklmnop"},
			{"radio cannot join", radio, engine.OptJoin, "weather"},
		} {
			err := tc.sock.SetOption(tc.opt, []byte(tc.group))
			assert.Equal(t, engine.EINVAL, engine.ErrnoOf(err), tc.name)
		}
	})
}

// TestHighWaterMark_DontWait fails fast once the peer queue is full
func TestHighWaterMark_DontWait(t *testing.T) {
	c := newTestContext(t)
	push := newTestSocket(t, c, engine.Push)
	pull := newTestSocket(t, c, engine.Pull)

	require.NoError(t, pull.SetOption(engine.OptRecvHWM, 2))
	require.NoError(t, pull.Bind("inproc://narrow"))
	require.NoError(t, push.Connect("inproc://narrow"))

	require.NoError(t, push.Send([]byte("1"), engine.DontWait))
	require.NoError(t, push.Send([]byte("2"), engine.DontWait))
	err := push.Send([]byte("3"), engine.DontWait)
	assert.Equal(t, engine.EAGAIN, engine.ErrnoOf(err))

	ev, err := push.Events()
	require.NoError(t, err)
	assert.Zero(t, ev&engine.PollOut)

	assert.Equal(t, []string{"1"}, recvAll(t, pull))
	ev, err = push.Events()
	require.NoError(t, err)
	assert.NotZero(t, ev&engine.PollOut)
}

// TestRecv_Timeout returns EAGAIN after the receive timeout
func TestRecv_Timeout(t *testing.T) {
	c := newTestContext(t)
	pull := newTestSocket(t, c, engine.Pull)
	require.NoError(t, pull.SetOption(engine.OptRecvTimeout, 20*time.Millisecond))
	require.NoError(t, pull.Bind("inproc://quiet"))

	start := time.Now()
	_, _, err := pull.Recv(0)
	assert.Equal(t, engine.EAGAIN, engine.ErrnoOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// TestClose_WakesBlockedRecv unblocks a receiver when its socket closes
func TestClose_WakesBlockedRecv(t *testing.T) {
	c := newTestContext(t)
	pull := newTestSocket(t, c, engine.Pull)
	require.NoError(t, pull.Bind("inproc://closing"))

	done := make(chan error, 1)
	go func() {
		_, _, err := pull.Recv(0)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pull.Close())

	select {
	case err := <-done:
		assert.Equal(t, engine.ENOTSOCK, engine.ErrnoOf(err))
	case <-time.After(time.Second):
		t.Fatal("recv still blocked after close")
	}

	assert.Equal(t, engine.ENOTSOCK, engine.ErrnoOf(pull.Close()))
}

// TestShutdown_WakesBlockedRecv fails blocked calls with ETERM
func TestShutdown_WakesBlockedRecv(t *testing.T) {
	c := newTestContext(t)
	pull := newTestSocket(t, c, engine.Pull)
	require.NoError(t, pull.Bind("inproc://term"))

	done := make(chan error, 1)
	go func() {
		_, _, err := pull.Recv(0)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Shutdown()

	select {
	case err := <-done:
		assert.Equal(t, engine.ETERM, engine.ErrnoOf(err))
	case <-time.After(time.Second):
		t.Fatal("recv still blocked after shutdown")
	}

	_, err := c.NewSocket(engine.Pull)
	assert.Equal(t, engine.ETERM, engine.ErrnoOf(err))
	require.NoError(t, pull.Close())
}

// TestClose_Linger delivers queued messages once a peer binds
func TestClose_Linger(t *testing.T) {
	c := newTestContext(t)
	push, err := c.NewSocket(engine.Push)
	require.NoError(t, err)
	require.NoError(t, push.SetOption(engine.OptLinger, time.Second))
	require.NoError(t, push.Connect("inproc://later"))
	sendAll(t, push, "kept")

	closed := make(chan struct{})
	go func() {
		_ = push.Close()
		close(closed)
	}()

	time.Sleep(10 * time.Millisecond)
	pull := newTestSocket(t, c, engine.Pull)
	require.NoError(t, pull.Bind("inproc://later"))

	<-closed
	assert.Equal(t, []string{"kept"}, recvAll(t, pull))
}

// TestContext_MaxSockets enforces the socket limit
func TestContext_MaxSockets(t *testing.T) {
	c, err := NewContext(engine.ContextOptions{MaxSockets: 2})
	require.NoError(t, err)
	defer c.Term()

	_, err = c.NewSocket(engine.Pair)
	require.NoError(t, err)
	s, err := c.NewSocket(engine.Pair)
	require.NoError(t, err)

	_, err = c.NewSocket(engine.Pair)
	assert.Equal(t, engine.EMFILE, engine.ErrnoOf(err))

	require.NoError(t, s.Close())
	_, err = c.NewSocket(engine.Pair)
	assert.NoError(t, err)
}

// TestInterrupt_Events fails exactly one readiness query with EINTR
func TestInterrupt_Events(t *testing.T) {
	c := newTestContext(t)
	s := newTestSocket(t, c, engine.Pull)

	c.Interrupt()
	_, err := s.Events()
	assert.Equal(t, engine.EINTR, engine.ErrnoOf(err))
	_, err = s.Events()
	assert.NoError(t, err)
}

// TestMonitor_Events reports the connection lifecycle
func TestMonitor_Events(t *testing.T) {
	c := newTestContext(t)
	rep := newTestSocket(t, c, engine.Rep)
	require.NoError(t, rep.Monitor("inproc://mon", engine.EventAll))

	watcher := newTestSocket(t, c, engine.Pair)
	require.NoError(t, watcher.SetOption(engine.OptRecvTimeout, time.Second))
	require.NoError(t, watcher.Connect("inproc://mon"))

	require.NoError(t, rep.Bind("inproc://svc"))
	req := newTestSocket(t, c, engine.Req)
	require.NoError(t, req.Connect("inproc://svc"))
	require.NoError(t, rep.Close())

	var codes []engine.EventMask
	for {
		f1, more, err := watcher.Recv(0)
		require.NoError(t, err)
		require.True(t, more)
		f2, _, err := watcher.Recv(0)
		require.NoError(t, err)
		code, _, _, err := engine.DecodeEvent([][]byte{f1, f2})
		require.NoError(t, err)
		codes = append(codes, code)
		if code == engine.EventMonitorStopped {
			break
		}
	}
	assert.Equal(t, []engine.EventMask{
		engine.EventListening,
		engine.EventAccepted,
		engine.EventClosed,
		engine.EventDisconnected,
		engine.EventMonitorStopped,
	}, codes)
}

// TestHandshake_Curve rejects a client holding the wrong server key
func TestHandshake_Curve(t *testing.T) {
	serverPub := make([]byte, 32)
	serverPub[0] = 1
	wrong := make([]byte, 32)
	wrong[0] = 2

	c := newTestContext(t)
	server := newTestSocket(t, c, engine.Rep)
	require.NoError(t, server.SetOption(engine.OptCurveServer, true))
	require.NoError(t, server.SetOption(engine.OptCurvePublicKey, serverPub))
	require.NoError(t, server.SetOption(engine.OptCurveSecretKey, make([]byte, 32)))
	require.NoError(t, server.Monitor("inproc://curve-mon", engine.EventHandshakeFailedProtocol|engine.EventHandshakeSucceeded))

	watcher := newTestSocket(t, c, engine.Pair)
	require.NoError(t, watcher.SetOption(engine.OptRecvTimeout, time.Second))
	require.NoError(t, watcher.Connect("inproc://curve-mon"))
	require.NoError(t, server.Bind("inproc://secure"))

	client := newTestSocket(t, c, engine.Req)
	require.NoError(t, client.SetOption(engine.OptCurveServerKey, wrong))
	require.NoError(t, client.Connect("inproc://secure"))

	f1, _, err := watcher.Recv(0)
	require.NoError(t, err)
	f2, _, err := watcher.Recv(0)
	require.NoError(t, err)
	code, value, _, err := engine.DecodeEvent([][]byte{f1, f2})
	require.NoError(t, err)
	assert.Equal(t, engine.EventHandshakeFailedProtocol, code)
	assert.Equal(t, engine.ProtocolErrorCryptographic, value)

	good := newTestSocket(t, c, engine.Req)
	require.NoError(t, good.SetOption(engine.OptCurveServerKey, serverPub))
	require.NoError(t, good.Connect("inproc://secure"))

	f1, _, err = watcher.Recv(0)
	require.NoError(t, err)
	f2, _, err = watcher.Recv(0)
	require.NoError(t, err)
	code, _, _, err = engine.DecodeEvent([][]byte{f1, f2})
	require.NoError(t, err)
	assert.Equal(t, engine.EventHandshakeSucceeded, code)
}

// TestOptions_Validation rejects bad values and reports metadata
func TestOptions_Validation(t *testing.T) {
	c := newTestContext(t)
	s := newTestSocket(t, c, engine.Req)

	err := s.SetOption(engine.OptSendHWM, -1)
	assert.Equal(t, engine.EINVAL, engine.ErrnoOf(err))

	err = s.SetOption(engine.OptSubscribe, []byte("x"))
	assert.Equal(t, engine.EINVAL, engine.ErrnoOf(err))

	err = s.SetOption(engine.OptCurvePublicKey, []byte("short"))
	assert.Equal(t, engine.EINVAL, engine.ErrnoOf(err))

	require.NoError(t, s.SetOption(engine.OptSendTimeout, 5*time.Millisecond))
	v, err := s.GetOption(engine.OptSendTimeout)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, v)

	spec, ok := s.OptionSpec(engine.OptIdentity)
	require.True(t, ok)
	assert.Equal(t, engine.BeforeAttach, spec.Mutability)

	_, ok = s.OptionSpec("bogus")
	assert.False(t, ok)
	assert.True(t, errors.Is(s.SetOption("bogus", 1), engine.EINVAL))
}
