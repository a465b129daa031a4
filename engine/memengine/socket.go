package memengine

import (
	"encoding/binary"
	"time"

	"github.com/eapache/queue"

	"github.com/multifrost/zsock/engine"
)

// pipe is one end of a connection, owned by the socket that writes to it. A
// connector pipe with a nil peer is pending: it buffers up to the send
// high-water mark until a listener appears.
type pipe struct {
	id        uint32
	owner     *socket
	peer      *pipe
	endpoint  string
	connector bool
	routingID []byte
	backlog   [][][]byte
}

// envelope is a complete message waiting in a socket's inbox, tagged with the
// receiving-side pipe it arrived on.
type envelope struct {
	from   *pipe
	frames [][]byte
}

type monitorTap struct {
	sock *socket
	mask engine.EventMask
}

type socket struct {
	ctx    *Context
	typ    engine.SocketType
	sig    *engine.Signal
	opts   options
	subs   map[string]int
	groups map[string]struct{}

	pipes   []*pipe
	bound   []string
	last    string
	rr      int
	inbox   *queue.Queue
	cur     [][]byte
	out     [][]byte
	closing bool
	closed  bool
	mon     *monitorTap

	// REQ
	awaiting bool
	reqPipe  *pipe

	// REP
	replying bool
	repPipe  *pipe
	repEnv   [][]byte
}

func newSocket(c *Context, t engine.SocketType) *socket {
	return &socket{
		ctx:    c,
		typ:    t,
		sig:    engine.NewSignal(),
		opts:   defaultOptions(),
		subs:   make(map[string]int),
		groups: make(map[string]struct{}),
		inbox:  queue.New(),
	}
}

func (s *socket) Type() engine.SocketType { return s.typ }

func (s *socket) LastEndpoint() string {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.last
}

func (s *socket) OptionSpec(name string) (engine.OptionSpec, bool) {
	return optionTable.Lookup(name)
}

func (s *socket) SetOption(name string, value any) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.closed {
		return engine.ENOTSOCK
	}
	return s.set(name, value)
}

func (s *socket) GetOption(name string) (any, error) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.closed {
		return nil, engine.ENOTSOCK
	}
	return s.get(name)
}

func (s *socket) Watch(ch chan<- struct{})   { s.sig.Watch(ch) }
func (s *socket) Unwatch(ch chan<- struct{}) { s.sig.Unwatch(ch) }

// usable reports why s cannot take a send or receive call right now.
func (s *socket) usable() error {
	if s.ctx.terminated {
		return engine.ETERM
	}
	if s.closed || s.closing {
		return engine.ENOTSOCK
	}
	return nil
}

func (s *socket) Bind(endpoint string) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.listen(endpoint)
}

// listen binds s at endpoint and attaches any connectors already waiting
// there. The caller holds the context lock.
func (s *socket) listen(endpoint string) error {
	c := s.ctx
	ep, err := c.resolve(endpoint)
	if err != nil {
		return err
	}
	k := key(ep)
	if _, taken := c.listeners[k]; taken {
		s.emit(engine.EventBindFailed, uint32(engine.EADDRINUSE), endpoint)
		return engine.Errorf(engine.EADDRINUSE, "%s", endpoint)
	}
	c.listeners[k] = s
	s.bound = append(s.bound, ep)
	s.last = ep
	s.emit(engine.EventListening, 0, ep)

	var waiting []*pipe
	for _, d := range c.dialers[k] {
		if !c.attach(d, s, ep) {
			waiting = append(waiting, d)
		}
	}
	if len(waiting) == 0 {
		delete(c.dialers, k)
	} else {
		c.dialers[k] = waiting
	}
	return nil
}

func (s *socket) Connect(endpoint string) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	k := key(endpoint)
	if k == "tcp:*" || k == "tcp:0" {
		return engine.Errorf(engine.EINVAL, "cannot connect to wildcard %s", endpoint)
	}
	if _, err := c.resolve(endpoint); err != nil {
		return err
	}

	d := &pipe{id: c.pipeID(), owner: s, endpoint: endpoint, connector: true}
	s.pipes = append(s.pipes, d)
	if l, ok := c.listeners[k]; ok {
		bound := l.boundAs(k)
		if c.attach(d, l, bound) {
			return nil
		}
	} else {
		s.emit(engine.EventConnectDelayed, 0, endpoint)
	}
	c.dialers[k] = append(c.dialers[k], d)
	return nil
}

func (s *socket) boundAs(k string) string {
	for _, ep := range s.bound {
		if key(ep) == k {
			return ep
		}
	}
	return k
}

func (s *socket) Unbind(endpoint string) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return engine.ENOTSOCK
	}
	k := key(endpoint)
	idx := -1
	for i, ep := range s.bound {
		if key(ep) == k {
			idx = i
			break
		}
	}
	if idx < 0 {
		return engine.Errorf(engine.ENOENT, "not bound to %s", endpoint)
	}
	ep := s.bound[idx]
	s.bound = append(s.bound[:idx], s.bound[idx+1:]...)
	delete(c.listeners, k)

	for _, p := range append([]*pipe(nil), s.pipes...) {
		if !p.connector && key(p.endpoint) == k {
			c.detach(p)
		}
	}
	s.emit(engine.EventClosed, 0, ep)
	s.sig.Notify()
	return nil
}

func (s *socket) Disconnect(endpoint string) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return engine.ENOTSOCK
	}
	k := key(endpoint)
	for _, p := range s.pipes {
		if !p.connector || key(p.endpoint) != k {
			continue
		}
		if p.peer == nil {
			c.removeDialer(p)
			s.pipes = removePipe(s.pipes, p)
			s.forget(p)
		} else {
			c.detach(p)
		}
		s.sig.Notify()
		return nil
	}
	return engine.Errorf(engine.ENOENT, "not connected to %s", endpoint)
}

// forget drops per-peer state that referred to p.
func (s *socket) forget(p *pipe) {
	if s.reqPipe == p {
		s.reqPipe = nil
	}
	if s.repPipe == p {
		s.repPipe = nil
	}
}

func (s *socket) resetInbox() {
	s.inbox = queue.New()
	s.cur = nil
}

func (s *socket) hasRoom() bool {
	return s.opts.recvHWM <= 0 || s.inbox.Length() < s.opts.recvHWM
}

// enqueue stores a message that arrived on p, the receiving-side pipe.
func (s *socket) enqueue(p *pipe, frames [][]byte) {
	s.inbox.Add(&envelope{from: p, frames: frames})
	s.sig.Notify()
}

// writable reports whether a message can leave through p right now.
func (p *pipe) writable() bool {
	if p.peer == nil {
		if !p.connector {
			return false
		}
		hwm := p.owner.opts.sendHWM
		return hwm <= 0 || len(p.backlog) < hwm
	}
	return p.peer.owner.hasRoom()
}

func (p *pipe) write(frames [][]byte) {
	if p.peer == nil {
		p.backlog = append(p.backlog, frames)
		return
	}
	p.peer.owner.enqueue(p.peer, frames)
}

// pick returns the next writable pipe in round-robin order, or nil. It only
// advances the cursor when advance is set.
func (s *socket) pick(advance bool) *pipe {
	n := len(s.pipes)
	if s.typ == engine.Pair && n > 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		j := (s.rr + i) % n
		if p := s.pipes[j]; p.writable() {
			if advance {
				s.rr = (j + 1) % n
			}
			return p
		}
	}
	return nil
}

func cloneFrames(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

func (s *socket) subscribed(topic []byte) bool {
	for prefix := range s.subs {
		if len(topic) >= len(prefix) && string(topic[:len(prefix)]) == prefix {
			return true
		}
	}
	return false
}

// route hands a complete message to the pattern. It returns EAGAIN when the
// message should be retried after a wait.
func (s *socket) route(frames [][]byte) error {
	switch s.typ {
	case engine.Pub:
		first := true
		for _, p := range s.pipes {
			if p.peer == nil {
				continue
			}
			r := p.peer.owner
			if !r.subscribed(frames[0]) || !r.hasRoom() {
				continue
			}
			if first {
				p.write(frames)
				first = false
			} else {
				p.write(cloneFrames(frames))
			}
		}
		return nil

	case engine.Req:
		p := s.pick(true)
		if p == nil {
			return engine.EAGAIN
		}
		p.write(append([][]byte{{}}, frames...))
		s.awaiting = true
		s.reqPipe = p
		return nil

	case engine.Rep:
		p := s.repPipe
		if p != nil && p.peer != nil && p.peer.owner.hasRoom() {
			p.write(append(s.repEnv, frames...))
		}
		s.replying = false
		s.repPipe = nil
		s.repEnv = nil
		return nil

	case engine.Router:
		for _, p := range s.pipes {
			if p.peer != nil && string(p.routingID) == string(frames[0]) {
				if p.peer.owner.hasRoom() {
					p.write(frames[1:])
					return nil
				}
				if s.opts.routerMandatory {
					return engine.EAGAIN
				}
				return nil
			}
		}
		if s.opts.routerMandatory {
			return engine.Errorf(engine.EHOSTUNREACH, "no peer %x", frames[0])
		}
		return nil

	case engine.Server:
		if len(frames) != 2 || len(frames[0]) != 4 {
			return engine.Errorf(engine.EINVAL, "server message needs a routing id and one body frame")
		}
		id := binary.BigEndian.Uint32(frames[0])
		for _, p := range s.pipes {
			if p.peer != nil && p.id == id {
				if !p.peer.owner.hasRoom() {
					return engine.EAGAIN
				}
				p.write(frames[1:])
				return nil
			}
		}
		return engine.Errorf(engine.EHOSTUNREACH, "no peer with routing id %d", id)

	case engine.Radio:
		if len(frames) != 2 {
			return engine.Errorf(engine.EINVAL, "radio message needs a group and one body frame")
		}
		for _, p := range s.pipes {
			if p.peer == nil {
				continue
			}
			r := p.peer.owner
			if _, ok := r.groups[string(frames[0])]; ok && r.hasRoom() {
				p.write(cloneFrames(frames))
			}
		}
		return nil

	case engine.Client:
		if len(frames) != 1 {
			return engine.Errorf(engine.EINVAL, "client messages are single part")
		}
	}

	p := s.pick(true)
	if p == nil {
		return engine.EAGAIN
	}
	p.write(frames)
	return nil
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// sleep releases the context lock until s is notified or the deadline passes.
// It reports false on timeout. A zero deadline waits forever.
func (s *socket) sleep(deadline time.Time) bool {
	ch := s.sig.C()
	c := s.ctx
	c.mu.Unlock()
	defer c.mu.Lock()

	if deadline.IsZero() {
		<-ch
		return true
	}
	d := time.Until(deadline)
	if d <= 0 {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

func (s *socket) Send(frame []byte, flags engine.Flag) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}
	if !s.typ.CanSend() {
		return engine.Errorf(engine.ENOTSUP, "send on %s socket", s.typ)
	}
	if len(s.out) == 0 {
		if s.typ == engine.Req && s.awaiting {
			return engine.Errorf(engine.EFSM, "request already outstanding")
		}
		if s.typ == engine.Rep && !s.replying {
			return engine.Errorf(engine.EFSM, "no request to reply to")
		}
	}
	s.out = append(s.out, frame)
	if flags&engine.SendMore != 0 {
		return nil
	}

	dontWait := flags&engine.DontWait != 0 || s.opts.sendTimeout == 0
	deadline := deadlineFor(s.opts.sendTimeout)
	for {
		err := s.route(s.out)
		if err == nil {
			s.out = nil
			return nil
		}
		if err != engine.EAGAIN {
			s.out = nil
			return err
		}
		if dontWait || !s.sleep(deadline) {
			s.out = s.out[:len(s.out)-1]
			return engine.EAGAIN
		}
		if err := s.usable(); err != nil {
			s.out = s.out[:len(s.out)-1]
			return err
		}
	}
}

func (s *socket) Recv(flags engine.Flag) ([]byte, bool, error) {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, false, err
	}
	if !s.typ.CanRecv() {
		return nil, false, engine.Errorf(engine.ENOTSUP, "recv on %s socket", s.typ)
	}
	if len(s.cur) == 0 {
		if s.typ == engine.Req && !s.awaiting {
			return nil, false, engine.Errorf(engine.EFSM, "no request outstanding")
		}
		if s.typ == engine.Rep && s.replying {
			return nil, false, engine.Errorf(engine.EFSM, "reply owed")
		}
	}

	dontWait := flags&engine.DontWait != 0 || s.opts.recvTimeout == 0
	deadline := deadlineFor(s.opts.recvTimeout)
	for len(s.cur) == 0 && !s.fetch() {
		if dontWait || !s.sleep(deadline) {
			return nil, false, engine.EAGAIN
		}
		if err := s.usable(); err != nil {
			return nil, false, err
		}
	}
	f := s.cur[0]
	s.cur = s.cur[1:]
	return f, len(s.cur) > 0, nil
}

// fetch moves the next acceptable message from the inbox into cur.
func (s *socket) fetch() bool {
	for s.inbox.Length() > 0 {
		env := s.inbox.Remove().(*envelope)
		if env.from.peer != nil {
			env.from.peer.owner.sig.Notify()
		}
		frames := env.frames

		switch s.typ {
		case engine.Req:
			if s.reqPipe == nil || env.from != s.reqPipe {
				continue
			}
			if len(frames) == 0 || len(frames[0]) != 0 {
				continue
			}
			frames = frames[1:]
			s.awaiting = false
			s.reqPipe = nil

		case engine.Rep:
			i := 0
			for i < len(frames) && len(frames[i]) != 0 {
				i++
			}
			if i == len(frames) {
				continue
			}
			s.repEnv = frames[:i+1]
			frames = frames[i+1:]
			s.repPipe = env.from
			s.replying = true

		case engine.Router:
			frames = append([][]byte{append([]byte(nil), env.from.routingID...)}, frames...)

		case engine.Server:
			frames = append([][]byte{binary.BigEndian.AppendUint32(nil, env.from.id)}, frames...)
		}

		if len(frames) == 0 {
			frames = [][]byte{{}}
		}
		s.cur = frames
		return true
	}
	return false
}

// readable reports whether Recv would return without waiting.
func (s *socket) readable() bool {
	if len(s.cur) > 0 {
		return true
	}
	switch s.typ {
	case engine.Req:
		if !s.awaiting || s.reqPipe == nil {
			return false
		}
		for i := 0; i < s.inbox.Length(); i++ {
			if env := s.inbox.Get(i).(*envelope); env.from == s.reqPipe {
				return true
			}
		}
		return false
	case engine.Rep:
		return !s.replying && s.inbox.Length() > 0
	}
	return s.inbox.Length() > 0
}

func (s *socket) writable() bool {
	switch s.typ {
	case engine.Pub, engine.Router, engine.Server, engine.Radio:
		return true
	case engine.Req:
		return !s.awaiting && s.pick(false) != nil
	case engine.Rep:
		return s.replying
	}
	return s.pick(false) != nil
}

func (s *socket) Events() (engine.Readiness, error) {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed || s.closing {
		return 0, engine.ENOTSOCK
	}
	if c.terminated {
		return 0, engine.ETERM
	}
	if c.interrupts > 0 {
		c.interrupts--
		return 0, engine.EINTR
	}
	var r engine.Readiness
	if s.typ.CanRecv() && s.readable() {
		r |= engine.PollIn
	}
	if s.typ.CanSend() && s.writable() {
		r |= engine.PollOut
	}
	return r, nil
}

func (s *socket) Monitor(endpoint string, mask engine.EventMask) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return engine.ENOTSOCK
	}
	if s.mon != nil {
		s.emit(engine.EventMonitorStopped, 0, "")
		c.stopMonitor(s)
	}
	if endpoint == "" {
		return nil
	}
	m := newSocket(c, engine.Pair)
	m.opts.linger = 0
	if err := m.listen(endpoint); err != nil {
		return err
	}
	s.mon = &monitorTap{sock: m, mask: mask}
	return nil
}

// emit publishes a monitor event if s is monitored for code. MonitorStopped
// ignores the mask since it ends the stream. Events are dropped when nobody is
// listening or the listener is full.
func (s *socket) emit(code engine.EventMask, value uint32, endpoint string) {
	if s.mon == nil || (code != engine.EventMonitorStopped && s.mon.mask&code == 0) {
		return
	}
	pipes := s.mon.sock.pipes
	if len(pipes) == 0 {
		return
	}
	if p := pipes[0]; p.peer != nil && p.peer.owner.hasRoom() {
		p.write(engine.EncodeEvent(code, value, endpoint))
	}
}

// backlogged reports whether any pending connector still holds messages.
func (s *socket) backlogged() bool {
	for _, p := range s.pipes {
		if len(p.backlog) > 0 {
			return true
		}
	}
	return false
}

func (s *socket) Close() error {
	c := s.ctx
	c.mu.Lock()
	if s.closed || s.closing {
		c.mu.Unlock()
		return engine.ENOTSOCK
	}
	s.closing = true
	s.sig.Notify()

	if s.opts.linger != 0 {
		deadline := deadlineFor(s.opts.linger)
		for s.backlogged() && !c.terminated {
			if !s.sleep(deadline) {
				break
			}
		}
	}
	c.teardown(s)
	c.mu.Unlock()

	s.sig.Notify()
	return nil
}
