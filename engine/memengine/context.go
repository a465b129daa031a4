// Package memengine is an in-process engine. Every endpoint, whatever its
// transport, names a slot in the owning context's namespace, so sockets of one
// context talk to each other the way inproc sockets do in libzmq: connect may
// precede bind, queues are bounded by the high-water marks, and peers come and
// go without the application seeing errors.
//
// A single mutex per context guards the whole fabric. Throughput is not the
// point; determinism is.
package memengine

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/multifrost/zsock/engine"
)

const (
	defaultMaxSockets = 1023
	firstEphemeral    = 49152
)

// Engine creates in-process contexts.
type Engine struct{}

// New returns the in-process engine.
func New() *Engine {
	return &Engine{}
}

// Name implements engine.Engine.
func (*Engine) Name() string { return "mem" }

// NewContext implements engine.Engine.
func (*Engine) NewContext(opts engine.ContextOptions) (engine.Context, error) {
	return NewContext(opts)
}

// Context is an endpoint namespace plus the sockets living in it.
type Context struct {
	mu         sync.Mutex
	ioThreads  int
	maxSockets int
	sockets    map[*socket]struct{}
	listeners  map[string]*socket
	dialers    map[string][]*pipe
	terminated bool
	interrupts int
	nextPort   int
	nextPipe   uint32
	nextIdent  uint32
}

// NewContext creates a context directly, for callers that want Interrupt.
func NewContext(opts engine.ContextOptions) (*Context, error) {
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
	return &Context{
		ioThreads:  opts.IOThreads,
		maxSockets: limit,
		sockets:    make(map[*socket]struct{}),
		listeners:  make(map[string]*socket),
		dialers:    make(map[string][]*pipe),
		nextPort:   firstEphemeral,
	}, nil
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
	if !t.Valid() {
		return nil, engine.Errorf(engine.EINVAL, "socket type %d", int(t))
	}
	s := newSocket(c, t)
	c.sockets[s] = struct{}{}
	return s, nil
}

// Shutdown implements engine.Context.
func (c *Context) Shutdown() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
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
	for _, s := range socks {
		c.teardown(s)
	}
	c.mu.Unlock()

	for _, s := range socks {
		s.sig.Notify()
	}
	return nil
}

// Interrupt makes the next readiness query on any socket of the context fail
// with EINTR, the way a signal interrupts zmq_poll.
func (c *Context) Interrupt() {
	c.mu.Lock()
	c.interrupts++
	socks := c.socketList()
	c.mu.Unlock()

	for _, s := range socks {
		s.sig.Notify()
	}
}

func (c *Context) socketList() []*socket {
	out := make([]*socket, 0, len(c.sockets))
	for s := range c.sockets {
		out = append(out, s)
	}
	return out
}

func (c *Context) pipeID() uint32 {
	c.nextPipe++
	return c.nextPipe
}

// identity returns the routing id a peer of s will see.
func (c *Context) identity(s *socket) []byte {
	if len(s.opts.identity) > 0 {
		return append([]byte(nil), s.opts.identity...)
	}
	c.nextIdent++
	id := make([]byte, 5)
	binary.BigEndian.PutUint32(id[1:], c.nextIdent)
	return id
}

// resolve turns a bind endpoint into its concrete form, assigning ports and
// paths for wildcards.
func (c *Context) resolve(endpoint string) (string, error) {
	scheme, addr, ok := strings.Cut(endpoint, "://")
	if !ok || addr == "" {
		return "", engine.Errorf(engine.EINVAL, "endpoint %q", endpoint)
	}
	switch scheme {
	case "tcp":
		i := strings.LastIndexByte(addr, ':')
		if i < 0 {
			return "", engine.Errorf(engine.EINVAL, "endpoint %q", endpoint)
		}
		host, port := addr[:i], addr[i+1:]
		if port == "*" || port == "0" {
			port = fmt.Sprint(c.nextPort)
			c.nextPort++
		}
		if host == "*" || host == "0.0.0.0" || host == "" {
			host = "127.0.0.1"
		}
		return "tcp://" + host + ":" + port, nil
	case "ipc":
		if addr == "*" {
			c.nextPort++
			return fmt.Sprintf("ipc:///tmp/zsock-mem-%d", c.nextPort), nil
		}
		return endpoint, nil
	case "inproc":
		return endpoint, nil
	}
	return "", engine.Errorf(engine.EPROTONOSUPPORT, "transport %q", scheme)
}

// key maps an endpoint to its namespace slot. TCP endpoints are keyed by port
// alone so any host name reaches a listener, as on a single machine.
func key(endpoint string) string {
	if rest, ok := strings.CutPrefix(endpoint, "tcp://"); ok {
		if i := strings.LastIndexByte(rest, ':'); i >= 0 {
			return "tcp:" + rest[i+1:]
		}
	}
	return endpoint
}

func removePipe(list []*pipe, p *pipe) []*pipe {
	for i, q := range list {
		if q == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (c *Context) removeDialer(p *pipe) {
	k := key(p.endpoint)
	list := removePipe(c.dialers[k], p)
	if len(list) == 0 {
		delete(c.dialers, k)
	} else {
		c.dialers[k] = list
	}
}

// attach completes the connection of dialer pipe d to listener l. It reports
// false when the handshake fails; d then stays pending.
func (c *Context) attach(d *pipe, l *socket, boundAs string) bool {
	ds := d.owner
	if code, value := handshake(ds, l); code != 0 {
		l.emit(code, value, boundAs)
		ds.emit(code, value, d.endpoint)
		return false
	}

	lp := &pipe{
		id:        c.pipeID(),
		owner:     l,
		peer:      d,
		endpoint:  boundAs,
		routingID: c.uniqueIdentity(l, ds),
	}
	d.peer = lp
	d.routingID = c.identity(l)
	l.pipes = append(l.pipes, lp)

	for _, frames := range d.backlog {
		l.enqueue(lp, frames)
	}
	d.backlog = nil

	l.emit(engine.EventAccepted, lp.id, boundAs)
	ds.emit(engine.EventConnected, d.id, d.endpoint)
	if mechanism(l) != mechNull {
		l.emit(engine.EventHandshakeSucceeded, 0, boundAs)
		ds.emit(engine.EventHandshakeSucceeded, 0, d.endpoint)
	}

	l.sig.Notify()
	ds.sig.Notify()
	return true
}

// uniqueIdentity picks the routing id l uses for peer, regenerating it when
// a router already has a peer with the same identity.
func (c *Context) uniqueIdentity(l, peer *socket) []byte {
	id := c.identity(peer)
	if l.typ != engine.Router {
		return id
	}
	for _, p := range l.pipes {
		if string(p.routingID) == string(id) {
			c.nextIdent++
			id = make([]byte, 5)
			binary.BigEndian.PutUint32(id[1:], c.nextIdent)
			break
		}
	}
	return id
}

// detach breaks the connection held by pipe p of its owner. A dialer on the
// far side goes back to pending so it reattaches on the next bind.
func (c *Context) detach(p *pipe) {
	s := p.owner
	s.pipes = removePipe(s.pipes, p)
	s.forget(p)
	s.emit(engine.EventDisconnected, p.id, p.endpoint)

	peer := p.peer
	p.peer = nil
	if peer == nil {
		return
	}
	ps := peer.owner
	peer.peer = nil
	if peer.connector && !ps.closed {
		k := key(peer.endpoint)
		c.dialers[k] = append(c.dialers[k], peer)
		ps.emit(engine.EventDisconnected, peer.id, peer.endpoint)
		ps.emit(engine.EventConnectRetried, 0, peer.endpoint)
	} else {
		ps.pipes = removePipe(ps.pipes, peer)
		ps.forget(peer)
		ps.emit(engine.EventDisconnected, peer.id, peer.endpoint)
	}
	ps.sig.Notify()
}

// teardown releases everything s holds in the namespace. The caller holds
// c.mu.
func (c *Context) teardown(s *socket) {
	if s.closed {
		return
	}
	s.closed = true
	delete(c.sockets, s)

	for _, ep := range s.bound {
		if c.listeners[key(ep)] == s {
			delete(c.listeners, key(ep))
		}
		s.emit(engine.EventClosed, 0, ep)
	}
	s.bound = nil

	for _, p := range append([]*pipe(nil), s.pipes...) {
		if p.connector && p.peer == nil {
			c.removeDialer(p)
			s.pipes = removePipe(s.pipes, p)
			continue
		}
		c.detach(p)
	}
	s.pipes = nil
	s.resetInbox()
	s.out = nil

	s.emit(engine.EventMonitorStopped, 0, "")
	c.stopMonitor(s)
}

func (c *Context) stopMonitor(s *socket) {
	if s.mon == nil {
		return
	}
	m := s.mon.sock
	s.mon = nil
	c.teardown(m)
	m.sig.Notify()
}
