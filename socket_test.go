package zsock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/multifrost/zsock/engine/memengine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := NewContext(ContextConfig{Engine: memengine.New()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Term(ctx)
	})
	return c
}

// quick returns a config with zero linger so tests never wait on close.
func quick() *SocketConfig {
	return NewSocketConfig().Linger(0)
}

func newTestSocket(t *testing.T, c *Context, role Role, cfg *SocketConfig) *Socket {
	t.Helper()
	if cfg == nil {
		cfg = quick()
	}
	s, err := c.Socket(role, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestPingPong runs the basic request/reply exchange over inproc
func TestPingPong(t *testing.T) {
	c := newTestContext(t)

	rep, err := NewRep(c, quick())
	require.NoError(t, err)
	defer rep.Close()
	req, err := NewReq(c, quick())
	require.NoError(t, err)
	defer req.Close()

	require.NoError(t, rep.Bind("inproc://test"))
	require.NoError(t, req.Connect("inproc://test"))

	require.NoError(t, req.Send(NewMessage([]byte("ping")), 0))

	msg, err := rep.Recv(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), msg.Bytes())
	assert.False(t, msg.More())

	require.NoError(t, rep.SendString("pong", 0))

	text, err := req.RecvString(0)
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
}

// TestReqRep_Alternation enforces strict send/recv ordering on both sides
func TestReqRep_Alternation(t *testing.T) {
	c := newTestContext(t)
	rep := newTestSocket(t, c, RoleRep, nil)
	req := newTestSocket(t, c, RoleReq, nil)
	require.NoError(t, rep.Bind("inproc://alt"))
	require.NoError(t, req.Connect("inproc://alt"))

	t.Run("req recv before send", func(t *testing.T) {
		_, err := req.Recv(DontWait)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("rep send before recv", func(t *testing.T) {
		err := rep.Send(NewMessageString("early"), 0)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, req.SendMessage([]byte(fmt.Sprintf("q%d", i))))

		err := req.Send(NewMessageString("again"), 0)
		assert.ErrorIs(t, err, ErrInvalidState)

		got, err := rep.RecvMultipart(0)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("q%d", i)}, got.Strings())

		_, err = rep.Recv(DontWait)
		assert.ErrorIs(t, err, ErrInvalidState)

		require.NoError(t, rep.SendMessage([]byte(fmt.Sprintf("a%d", i))))
		got, err = req.RecvMultipart(0)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("a%d", i)}, got.Strings())
	}
}

// TestMultipart_MoreSequence delivers frames in order with continuation flags
func TestMultipart_MoreSequence(t *testing.T) {
	c := newTestContext(t)
	pull := newTestSocket(t, c, RolePull, nil)
	push := newTestSocket(t, c, RolePush, nil)
	require.NoError(t, pull.Bind("inproc://frames"))
	require.NoError(t, push.Connect("inproc://frames"))

	frames := []string{"a", "b", "", "d"}
	for i, f := range frames {
		flags := SendMore
		if i == len(frames)-1 {
			flags = 0
		}
		msg := NewMessageString(f)
		require.NoError(t, push.Send(msg, flags))
		assert.True(t, msg.IsEmpty(), "send takes the payload")
	}

	var more []bool
	var got []string
	for {
		msg, err := pull.Recv(0)
		require.NoError(t, err)
		got = append(got, string(msg.Bytes()))
		more = append(more, msg.More())
		if !msg.More() {
			break
		}
		t.Run("only recv while partial", func(t *testing.T) {
			_, err := pull.RecvMultipart(DontWait)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
	assert.Equal(t, frames, got)
	assert.Equal(t, []bool{true, true, true, false}, more)
}

// TestRoles_IllegalOperations rejects operations the role cannot perform
func TestRoles_IllegalOperations(t *testing.T) {
	c := newTestContext(t)

	tests := []struct {
		role Role
		send bool
		recv bool
	}{
		{RolePub, true, false},
		{RoleSub, false, true},
		{RolePush, true, false},
		{RolePull, false, true},
		{RolePair, true, true},
		{RoleDealer, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			s := newTestSocket(t, c, tt.role, nil)
			err := s.Send(NewMessageString("x"), DontWait)
			if tt.send {
				assert.False(t, errors.Is(err, ErrInvalidState), "unexpected %v", err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidState)
			}
			_, err = s.Recv(DontWait)
			if tt.recv {
				assert.ErrorIs(t, err, ErrWouldBlock)
			} else {
				assert.ErrorIs(t, err, ErrInvalidState)
			}
		})
	}

	t.Run("subscribe on pub", func(t *testing.T) {
		s := newTestSocket(t, c, RolePub, nil)
		assert.ErrorIs(t, s.Subscribe([]byte("x")), ErrInvalidState)
	})
}

// TestSocket_CloseUnblocksRecv fails a blocked receive with SocketClosed
func TestSocket_CloseUnblocksRecv(t *testing.T) {
	c := newTestContext(t)
	pull := newTestSocket(t, c, RolePull, nil)
	require.NoError(t, pull.Bind("inproc://idle"))

	done := make(chan error, 1)
	go func() {
		_, err := pull.Recv(0)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pull.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSocketClosed)
	case <-time.After(time.Second):
		t.Fatal("recv still blocked after close")
	}

	t.Run("close is idempotent", func(t *testing.T) {
		assert.NoError(t, pull.Close())
		assert.True(t, pull.IsClosed())
	})

	t.Run("later operations fail", func(t *testing.T) {
		assert.ErrorIs(t, pull.Bind("inproc://again"), ErrSocketClosed)
		_, err := pull.Recv(DontWait)
		assert.ErrorIs(t, err, ErrSocketClosed)
		_, err = pull.Option(OptionLinger)
		assert.ErrorIs(t, err, ErrSocketClosed)
	})
}

// TestPubSub_LateJoinerGetsNoBacklog verifies no replay for late subscribers
func TestPubSub_LateJoinerGetsNoBacklog(t *testing.T) {
	c := newTestContext(t)

	pub, err := NewPub(c, quick())
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Bind("inproc://news"))

	for i := 0; i < 100; i++ {
		require.NoError(t, pub.SendString(fmt.Sprintf("old %d", i), 0))
	}

	sub, err := NewSub(c, quick().Subscribe(nil))
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Connect("inproc://news"))

	_, err = sub.Recv(DontWait)
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, pub.SendString("fresh", 0))
	text, err := sub.RecvString(0)
	require.NoError(t, err)
	assert.Equal(t, "fresh", text)
}

// TestPubSub_Subscriptions filters by prefix and tracks the active set
func TestPubSub_Subscriptions(t *testing.T) {
	c := newTestContext(t)
	pub := newTestSocket(t, c, RolePub, nil)
	sub, err := NewSub(c, quick().Subscribe([]byte("weather.")))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, pub.Bind("inproc://topics"))
	require.NoError(t, sub.Connect("inproc://topics"))

	require.NoError(t, pub.SendMessage([]byte("sports.goal")))
	require.NoError(t, pub.SendMessage([]byte("weather.rain")))

	text, err := sub.RecvString(0)
	require.NoError(t, err)
	assert.Equal(t, "weather.rain", text)

	require.NoError(t, sub.Subscribe([]byte("sports.")))
	require.NoError(t, sub.Subscribe([]byte("sports.")))
	assert.Len(t, sub.Subscriptions(), 2)

	require.NoError(t, sub.Unsubscribe([]byte("weather.")))
	require.NoError(t, sub.Unsubscribe([]byte("never")))
	assert.Equal(t, [][]byte{[]byte("sports.")}, sub.Subscriptions())

	require.NoError(t, pub.SendMessage([]byte("weather.sun")))
	require.NoError(t, pub.SendMessage([]byte("sports.score")))
	text, err = sub.RecvString(0)
	require.NoError(t, err)
	assert.Equal(t, "sports.score", text)
}

// TestRouter_IdentityRouting prepends and consumes the peer identity
func TestRouter_IdentityRouting(t *testing.T) {
	c := newTestContext(t)
	router, err := NewRouter(c, quick())
	require.NoError(t, err)
	defer router.Close()
	dealer, err := NewDealer(c, quick().Identity([]byte("worker-1")))
	require.NoError(t, err)
	defer dealer.Close()

	require.NoError(t, router.Bind("inproc://broker"))
	require.NoError(t, dealer.Connect("inproc://broker"))

	require.NoError(t, dealer.SendMessage([]byte("hello"), []byte("world")))

	msg, err := router.Recv(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("worker-1"), msg.Identity())
	assert.Equal(t, "hello", string(msg.Bytes()))
	assert.True(t, msg.More())
	msg, err = router.Recv(0)
	require.NoError(t, err)
	assert.Nil(t, msg.Identity())
	assert.Equal(t, "world", string(msg.Bytes()))

	t.Run("send needs identity", func(t *testing.T) {
		err := router.Send(NewMessageString("anon"), 0)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("reply by identity", func(t *testing.T) {
		reply := NewMessageString("welcome")
		reply.SetIdentity([]byte("worker-1"))
		require.NoError(t, router.Send(reply, 0))

		got, err := dealer.RecvMultipart(0)
		require.NoError(t, err)
		assert.Equal(t, []string{"welcome"}, got.Strings())
	})

	t.Run("multipart carries identity first", func(t *testing.T) {
		require.NoError(t, dealer.SendMessage([]byte("job")))
		got, err := router.RecvMultipart(0)
		require.NoError(t, err)
		assert.Equal(t, []string{"worker-1", "job"}, got.Strings())

		require.NoError(t, router.SendTo([]byte("worker-1"), []byte("done")))
		text, err := dealer.RecvString(0)
		require.NoError(t, err)
		assert.Equal(t, "done", text)
	})
}

// TestServerClient_Reply answers a client through the routing id it sent with
func TestServerClient_Reply(t *testing.T) {
	c := newTestContext(t)
	server, err := NewServer(c, quick())
	require.NoError(t, err)
	defer server.Close()
	client, err := NewClient(c, quick())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, server.Bind("inproc://draft-server"))
	require.NoError(t, client.Connect("inproc://draft-server"))

	require.NoError(t, client.SendString("hello", 0))
	msg, err := server.Recv(0)
	require.NoError(t, err)
	assert.NotZero(t, msg.RoutingID())
	assert.Equal(t, "hello", msg.String())
	assert.False(t, msg.More())

	require.NoError(t, server.SendTo(msg.RoutingID(), []byte("hi")))
	text, err := client.RecvString(0)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	t.Run("single part only", func(t *testing.T) {
		err := client.Send(NewMessageString("a"), SendMore)
		assert.ErrorIs(t, err, ErrInvalidState)
		err = client.SendMessage([]byte("a"), []byte("b"))
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("routing id required", func(t *testing.T) {
		err := server.Send(NewMessageString("nobody"), 0)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unknown peer", func(t *testing.T) {
		err := server.SendTo(msg.RoutingID()+1000, []byte("lost"))
		assert.ErrorIs(t, err, ErrHostUnreachable)
	})
}

// TestRadioDish_Groups delivers published messages to joined groups only
func TestRadioDish_Groups(t *testing.T) {
	c := newTestContext(t)
	radio, err := NewRadio(c, quick())
	require.NoError(t, err)
	defer radio.Close()
	dish, err := NewDish(c, quick())
	require.NoError(t, err)
	defer dish.Close()

	require.NoError(t, dish.Join("weather"))
	assert.Equal(t, []string{"weather"}, dish.Groups())
	require.NoError(t, radio.Bind("inproc://draft-radio"))
	require.NoError(t, dish.Connect("inproc://draft-radio"))

	require.NoError(t, radio.Publish("sports", []byte("goal")))
	require.NoError(t, radio.Publish("weather", []byte("sunny")))

	msg, err := dish.Recv(0)
	require.NoError(t, err)
	assert.Equal(t, "weather", msg.Group())
	assert.Equal(t, "sunny", msg.String())
	_, err = dish.Recv(DontWait)
	assert.ErrorIs(t, err, ErrWouldBlock)

	t.Run("membership", func(t *testing.T) {
		assert.ErrorIs(t, dish.Join("weather"), ErrConfigurationRejected)
		assert.ErrorIs(t, dish.Join("abcdefghijklmnop"), ErrConfigurationRejected)
		require.NoError(t, dish.Leave("weather"))
		assert.ErrorIs(t, dish.Leave("weather"), ErrConfigurationRejected)
		assert.Empty(t, dish.Groups())

		require.NoError(t, radio.Publish("weather", []byte("rain")))
		_, err := dish.Recv(DontWait)
		assert.ErrorIs(t, err, ErrWouldBlock)
	})

	t.Run("group names", func(t *testing.T) {
		assert.ErrorIs(t, radio.Publish("abcdefghijklmnop", []byte("x")), ErrInvalidState)
		assert.ErrorIs(t, radio.Raw().Send(NewMessageString("no group"), 0), ErrInvalidState)
		assert.Error(t, NewMessage(nil).SetGroup(""))
		assert.ErrorIs(t, radio.Raw().Join("weather"), ErrInvalidState)
	})
}

// TestRouter_Mandatory reports unknown peers only when asked to
func TestRouter_Mandatory(t *testing.T) {
	c := newTestContext(t)
	router := newTestSocket(t, c, RoleRouter, nil)
	require.NoError(t, router.Bind("inproc://strict"))

	assert.NoError(t, router.SendMultipart(Multipart{[]byte("ghost"), []byte("lost")}, 0))

	require.NoError(t, router.SetOption(OptionRouterMandatory, true))
	err := router.SendMultipart(Multipart{[]byte("ghost"), []byte("lost")}, 0)
	assert.ErrorIs(t, err, ErrHostUnreachable)

	t.Run("next message starts fresh", func(t *testing.T) {
		err := router.SendMultipart(Multipart{[]byte("ghost"), []byte("again")}, 0)
		assert.ErrorIs(t, err, ErrHostUnreachable)
	})
}

// TestSend_WouldBlockAndTimeout splits EAGAIN by the DontWait flag
func TestSend_WouldBlockAndTimeout(t *testing.T) {
	c := newTestContext(t)
	push := newTestSocket(t, c, RolePush, quick().SendTimeout(20*time.Millisecond))
	pull := newTestSocket(t, c, RolePull, quick().RecvHWM(1).RecvTimeout(20*time.Millisecond))

	_, err := pull.Recv(0)
	assert.ErrorIs(t, err, ErrTimeout)
	_, err = pull.Recv(DontWait)
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, pull.Bind("inproc://full"))
	require.NoError(t, push.Connect("inproc://full"))
	require.NoError(t, push.Send(NewMessageString("1"), 0))

	msg := NewMessageString("2")
	err = push.Send(msg, DontWait)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.False(t, IsFatal(err))
	assert.Equal(t, "2", string(msg.Bytes()), "a failed send leaves the message with the caller")

	err = push.Send(msg, 0)
	assert.ErrorIs(t, err, ErrTimeout)
}

// TestEndpoints_BindConnect validates endpoints before the engine sees them
func TestEndpoints_BindConnect(t *testing.T) {
	c := newTestContext(t)
	a := newTestSocket(t, c, RolePull, nil)
	b := newTestSocket(t, c, RolePull, nil)
	push := newTestSocket(t, c, RolePush, nil)

	assert.ErrorIs(t, a.Bind("nonsense"), ErrInvalidEndpoint)
	assert.ErrorIs(t, a.Bind("udp://host:1"), ErrInvalidEndpoint)
	assert.ErrorIs(t, push.Connect("tcp://127.0.0.1:*"), ErrInvalidEndpoint)

	require.NoError(t, a.Bind("inproc://one"))
	require.NoError(t, a.Bind("tcp://*:*"))
	assert.Contains(t, a.LastEndpoint(), "tcp://127.0.0.1:")
	assert.Len(t, a.Endpoints(), 2)

	err := b.Bind("inproc://one")
	assert.ErrorIs(t, err, ErrAddressInUse)
	var zerr *Error
	require.True(t, errors.As(err, &zerr))
	assert.Equal(t, "inproc://one", zerr.Endpoint)

	require.NoError(t, push.Connect("inproc://one"))
	assert.ErrorIs(t, push.Connect("inproc://one"), ErrInvalidState)

	require.NoError(t, push.Disconnect("inproc://one"))
	assert.ErrorIs(t, push.Disconnect("inproc://one"), ErrInvalidState)
	require.NoError(t, a.Unbind("inproc://one"))
	assert.ErrorIs(t, a.Unbind("inproc://one"), ErrInvalidState)
	require.NoError(t, b.Bind("inproc://one"))
}

// TestClose_Linger discards or flushes pending messages
func TestClose_Linger(t *testing.T) {
	c := newTestContext(t)

	t.Run("zero linger discards", func(t *testing.T) {
		push, err := c.Socket(RolePush, quick())
		require.NoError(t, err)
		require.NoError(t, push.Connect("inproc://discard"))
		require.NoError(t, push.SendMessage([]byte("dropped")))
		require.NoError(t, push.Close())

		pull := newTestSocket(t, c, RolePull, nil)
		require.NoError(t, pull.Bind("inproc://discard"))
		_, err = pull.Recv(DontWait)
		assert.ErrorIs(t, err, ErrWouldBlock)
	})

	t.Run("bounded linger gives up", func(t *testing.T) {
		push, err := c.Socket(RolePush, NewSocketConfig().Linger(30*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, push.Connect("inproc://nobody"))
		require.NoError(t, push.SendMessage([]byte("dropped")))

		start := time.Now()
		require.NoError(t, push.Close())
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("infinite linger flushes", func(t *testing.T) {
		push, err := c.Socket(RolePush, NewSocketConfig().Linger(Infinite))
		require.NoError(t, err)
		require.NoError(t, push.Connect("inproc://later"))
		require.NoError(t, push.SendMessage([]byte("kept")))

		closed := make(chan error, 1)
		go func() { closed <- push.Close() }()

		time.Sleep(20 * time.Millisecond)
		pull := newTestSocket(t, c, RolePull, nil)
		require.NoError(t, pull.Bind("inproc://later"))

		select {
		case err := <-closed:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("close did not return after the peer appeared")
		}
		got, err := pull.RecvMultipart(0)
		require.NoError(t, err)
		assert.Equal(t, []string{"kept"}, got.Strings())
	})
}

// TestConfigure_AfterAttach follows the engine's mutability metadata
func TestConfigure_AfterAttach(t *testing.T) {
	c := newTestContext(t)
	s := newTestSocket(t, c, RoleDealer, nil)

	require.NoError(t, s.SetOption(OptionIdentity, []byte("before")))
	require.NoError(t, s.Connect("inproc://somewhere"))

	err := s.SetOption(OptionIdentity, []byte("after"))
	assert.ErrorIs(t, err, ErrInvalidState)
	var zerr *Error
	require.True(t, errors.As(err, &zerr))
	assert.Equal(t, OptionIdentity, zerr.Option)

	t.Run("unchanged value is accepted", func(t *testing.T) {
		assert.NoError(t, s.SetOption(OptionIdentity, []byte("before")))
	})

	t.Run("mutable options still apply", func(t *testing.T) {
		require.NoError(t, s.SetOption(OptionRecvTimeout, 5*time.Millisecond))
		v, err := s.Option(OptionRecvTimeout)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Millisecond, v)
	})
}

// TestContext_ShutdownWakesBlockedCalls fails pending and later operations
func TestContext_ShutdownWakesBlockedCalls(t *testing.T) {
	c, err := NewContext(ContextConfig{Engine: memengine.New()})
	require.NoError(t, err)

	pull, err := c.Socket(RolePull, quick())
	require.NoError(t, err)
	require.NoError(t, pull.Bind("inproc://term"))

	done := make(chan error, 1)
	go func() {
		_, err := pull.Recv(0)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Shutdown()
	c.Shutdown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrContextTerminated)
		assert.True(t, IsFatal(err))
	case <-time.After(time.Second):
		t.Fatal("recv still blocked after shutdown")
	}

	_, err = c.Socket(RolePush, nil)
	assert.ErrorIs(t, err, ErrContextTerminated)
	assert.ErrorIs(t, pull.Connect("inproc://x"), ErrContextTerminated)

	require.NoError(t, pull.Close())
	require.NoError(t, c.Term(context.Background()))
	assert.Zero(t, c.OpenSockets())
}

// TestContext_TermForcesClose closes leftover sockets once the deadline passes
func TestContext_TermForcesClose(t *testing.T) {
	c, err := NewContext(ContextConfig{Engine: memengine.New()})
	require.NoError(t, err)

	s, err := c.Socket(RolePush, nil)
	require.NoError(t, err)
	require.NoError(t, s.Connect("inproc://never"))
	require.NoError(t, s.SendMessage([]byte("stuck")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Term(ctx))
	assert.True(t, s.IsClosed())
	assert.Zero(t, c.OpenSockets())
}

// TestContext_MaxSockets reports the limit as a fatal error
func TestContext_MaxSockets(t *testing.T) {
	c, err := NewContext(ContextConfig{Engine: memengine.New(), MaxSockets: 2})
	require.NoError(t, err)
	defer c.Term(context.Background())

	assert.Equal(t, 2, c.MaxSockets())
	assert.Equal(t, DefaultIOThreads, c.IOThreads())
	assert.Equal(t, "mem", c.Engine())

	a, err := c.Socket(RolePair, quick())
	require.NoError(t, err)
	b, err := c.Socket(RolePair, quick())
	require.NoError(t, err)
	assert.Equal(t, 2, c.OpenSockets())

	_, err = c.Socket(RolePair, quick())
	assert.ErrorIs(t, err, ErrResourceLimitExceeded)
	assert.True(t, IsFatal(err))

	require.NoError(t, a.Close())
	d, err := c.Socket(RolePair, quick())
	require.NoError(t, err)

	require.NoError(t, CloseAll(b, d))
}

// TestContext_InvalidConfig rejects negative counts
func TestContext_InvalidConfig(t *testing.T) {
	_, err := NewContext(ContextConfig{Engine: memengine.New(), IOThreads: -1})
	assert.ErrorIs(t, err, ErrConfigurationRejected)

	_, err = NewContext(ContextConfig{Engine: memengine.New(), MaxSockets: -5})
	assert.ErrorIs(t, err, ErrConfigurationRejected)
}

// TestSocket_ConcurrentOwnershipTransfer moves sockets between goroutines
func TestSocket_ConcurrentOwnershipTransfer(t *testing.T) {
	c := newTestContext(t)
	pull := newTestSocket(t, c, RolePull, nil)
	require.NoError(t, pull.Bind("inproc://fan-in"))

	const producers = 4
	const perProducer = 25
	errs := make(chan error, producers)
	for i := 0; i < producers; i++ {
		push := newTestSocket(t, c, RolePush, nil)
		go func(s *Socket, id int) {
			if err := s.Connect("inproc://fan-in"); err != nil {
				errs <- err
				return
			}
			for j := 0; j < perProducer; j++ {
				if err := s.SendMessage([]byte(fmt.Sprintf("%d-%d", id, j))); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}(push, i)
	}
	for i := 0; i < producers; i++ {
		require.NoError(t, <-errs)
	}

	seen := make(map[string]bool)
	for i := 0; i < producers*perProducer; i++ {
		got, err := pull.RecvMultipart(0)
		require.NoError(t, err)
		seen[got.Strings()[0]] = true
	}
	assert.Len(t, seen, producers*perProducer)
}
