// Package zmq4engine drives ZMTP sockets from github.com/go-zeromq/zmq4.
//
// zmq4 sockets take their identity, security mechanism and timeouts as
// construction options, so a native socket is created lazily on the first
// bind or connect, once those options are final. Received messages are pumped
// into a channel bounded by the receive high-water mark, which is what makes
// non-blocking receives and readiness queries possible on top of zmq4's
// blocking Recv.
//
// Monitor events are synthesised from the calls this package makes; zmq4 does
// not surface connection events of its own.
package zmq4engine

import (
	"context"
	"sync"

	"github.com/multifrost/zsock/engine"
)

const defaultMaxSockets = 1023

// Engine creates zmq4 backed contexts.
type Engine struct{}

// New returns the zmq4 engine.
func New() *Engine {
	return &Engine{}
}

// Name implements engine.Engine.
func (*Engine) Name() string { return "zmq4" }

// NewContext implements engine.Engine.
func (*Engine) NewContext(opts engine.ContextOptions) (engine.Context, error) {
	if opts.IOThreads < 0 {
		return nil, engine.Errorf(engine.EINVAL, "io threads %d", opts.IOThreads)
	}
	if opts.MaxSockets < 0 {
		return nil, engine.Errorf(engine.EINVAL, "max sockets %d", opts.MaxSockets)
	}
	limit := opts.MaxSockets
	if limit == 0 {
		limit = defaultMaxSockets
	}
	base, cancel := context.WithCancel(context.Background())
	return &Context{
		base:       base,
		cancel:     cancel,
		maxSockets: limit,
		sockets:    make(map[*socket]struct{}),
		monitors:   make(map[string]*eventPipe),
		done:       make(chan struct{}),
	}, nil
}

// Context scopes zmq4 sockets to one cancellable context.
type Context struct {
	mu         sync.Mutex
	base       context.Context
	cancel     context.CancelFunc
	maxSockets int
	sockets    map[*socket]struct{}
	monitors   map[string]*eventPipe
	terminated bool
	done       chan struct{}
}

// NewSocket implements engine.Context.
func (c *Context) NewSocket(t engine.SocketType) (engine.Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return nil, engine.ETERM
	}
	if len(c.sockets) >= c.maxSockets {
		return nil, engine.Errorf(engine.EMFILE, "max sockets %d reached", c.maxSockets)
	}
	if t.Draft() {
		return nil, engine.Errorf(engine.ENOTSUP, "%s sockets are not available in zmq4", t)
	}
	if !t.Valid() {
		return nil, engine.Errorf(engine.EINVAL, "socket type %d", int(t))
	}
	s := newSocket(c, t)
	c.sockets[s] = struct{}{}
	return s, nil
}

// Shutdown implements engine.Context. Cancelling the base context unblocks
// every zmq4 call made by the context's sockets.
func (c *Context) Shutdown() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	close(c.done)
	c.cancel()
	socks := c.socketList()
	c.mu.Unlock()

	for _, s := range socks {
		s.sig.Notify()
	}
}

// Term implements engine.Context.
func (c *Context) Term() error {
	c.Shutdown()

	c.mu.Lock()
	socks := c.socketList()
	c.mu.Unlock()

	for _, s := range socks {
		_ = s.Close()
	}
	return nil
}

func (c *Context) isTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

func (c *Context) socketList() []*socket {
	out := make([]*socket, 0, len(c.sockets))
	for s := range c.sockets {
		out = append(out, s)
	}
	return out
}

func (c *Context) release(s *socket) {
	c.mu.Lock()
	delete(c.sockets, s)
	c.mu.Unlock()
}
