package zmq4engine

import (
	"context"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/go-zeromq/zmq4/security/null"
	"github.com/go-zeromq/zmq4/security/plain"

	"github.com/multifrost/zsock/engine"
)

var optionTable = engine.NewOptionTable(
	engine.OptionSpec{Name: engine.OptLinger, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptSendHWM, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptRecvHWM, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptSendTimeout, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptRecvTimeout, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptTCPKeepAlive, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptIdentity, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptRouterMandatory, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptReconnectInterval, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptSubscribe, Mutability: engine.WriteOnly},
	engine.OptionSpec{Name: engine.OptUnsubscribe, Mutability: engine.WriteOnly},
	engine.OptionSpec{Name: engine.OptCurveServer, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptCurvePublicKey, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptCurveSecretKey, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptCurveServerKey, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptPlainServer, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptPlainUsername, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptPlainPassword, Mutability: engine.BeforeAttach},
)

type options struct {
	linger       time.Duration
	sendHWM      int
	recvHWM      int
	sendTimeout  time.Duration
	recvTimeout  time.Duration
	tcpKeepAlive int
	identity     []byte
	reconnectIvl time.Duration
	plainServer  bool
	plainUser    string
	plainPass    string
}

type socket struct {
	ctx *Context
	typ engine.SocketType
	sig *engine.Signal

	mu      sync.Mutex
	opts    options
	subs    []string
	zs      zmq4.Socket
	cancel  context.CancelFunc
	pumped  chan struct{}
	drained chan struct{}
	ready   chan struct{} // closed once zs exists
	slots   chan struct{} // one token per queued outbound message
	queue   chan [][]byte
	in      chan [][]byte
	cur     [][]byte
	out     [][]byte
	env     [][]byte // REP: routing envelope of the request being served
	failed  error    // REQ: why the last request never left
	last    string
	bound   []string
	dialed  []string
	mon     *eventPipe
	tap     *eventPipe
	closed  chan struct{}
	isDone  bool
	waiting bool // REQ: reply owed to us
	owing   bool // REP: reply owed by us
}

func newSocket(c *Context, t engine.SocketType) *socket {
	opts := options{
		linger:       30 * time.Second,
		sendHWM:      1000,
		recvHWM:      1000,
		sendTimeout:  engine.Infinite,
		recvTimeout:  engine.Infinite,
		tcpKeepAlive: -1,
		reconnectIvl: 100 * time.Millisecond,
	}
	return &socket{
		ctx:    c,
		typ:    t,
		sig:    engine.NewSignal(),
		opts:   opts,
		in:     make(chan [][]byte, opts.recvHWM),
		ready:  make(chan struct{}),
		slots:  make(chan struct{}, queueSize(opts.sendHWM)),
		queue:  make(chan [][]byte, queueSize(opts.sendHWM)),
		closed: make(chan struct{}),
	}
}

// queueSize maps a send high water mark onto the outbound queue capacity.
// Zero means no limit in libzmq; zmq4 has no such mode so it gets the default.
func queueSize(hwm int) int {
	if hwm <= 0 {
		return 1000
	}
	return hwm
}

func (s *socket) Type() engine.SocketType { return s.typ }

func (s *socket) LastEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *socket) OptionSpec(name string) (engine.OptionSpec, bool) {
	return optionTable.Lookup(name)
}

func (s *socket) Watch(ch chan<- struct{})   { s.sig.Watch(ch) }
func (s *socket) Unwatch(ch chan<- struct{}) { s.sig.Unwatch(ch) }

func (s *socket) attached() bool {
	return s.zs != nil || s.tap != nil
}

func (s *socket) SetOption(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDone {
		return engine.ENOTSOCK
	}

	var err error
	o := &s.opts
	switch name {
	case engine.OptLinger:
		o.linger, err = engine.AsDuration(name, value)
	case engine.OptSendHWM:
		var n int
		if n, err = engine.AsInt(name, value, 0); err == nil {
			o.sendHWM = n
			if !s.attached() && len(s.slots) == 0 {
				s.slots = make(chan struct{}, queueSize(n))
				s.queue = make(chan [][]byte, queueSize(n))
			}
		}
	case engine.OptRecvHWM:
		var n int
		if n, err = engine.AsInt(name, value, 0); err == nil {
			o.recvHWM = n
			if !s.attached() && len(s.in) == 0 {
				s.in = make(chan [][]byte, n)
			}
		}
	case engine.OptSendTimeout:
		o.sendTimeout, err = engine.AsDuration(name, value)
	case engine.OptRecvTimeout:
		o.recvTimeout, err = engine.AsDuration(name, value)
	case engine.OptTCPKeepAlive:
		o.tcpKeepAlive, err = engine.AsInt(name, value, -1)
	case engine.OptIdentity:
		o.identity, err = engine.AsBytes(name, value)
	case engine.OptReconnectInterval:
		o.reconnectIvl, err = engine.AsDuration(name, value)
	case engine.OptRouterMandatory:
		var on bool
		if on, err = engine.AsBool(name, value); err == nil && on {
			err = engine.Errorf(engine.ENOTSUP, "%s", name)
		}
	case engine.OptSubscribe, engine.OptUnsubscribe:
		if s.typ != engine.Sub {
			return engine.Errorf(engine.EINVAL, "%s on %s socket", name, s.typ)
		}
		var topic []byte
		if topic, err = engine.AsBytes(name, value); err == nil {
			err = s.subscribe(name, string(topic))
		}
	case engine.OptCurveServer, engine.OptCurvePublicKey, engine.OptCurveSecretKey, engine.OptCurveServerKey:
		err = engine.Errorf(engine.ENOTSUP, "%s: CURVE is not available in zmq4", name)
	case engine.OptPlainServer:
		o.plainServer, err = engine.AsBool(name, value)
	case engine.OptPlainUsername:
		var b []byte
		b, err = engine.AsBytes(name, value)
		o.plainUser = string(b)
	case engine.OptPlainPassword:
		var b []byte
		b, err = engine.AsBytes(name, value)
		o.plainPass = string(b)
	default:
		err = engine.Errorf(engine.EINVAL, "unknown option %q", name)
	}
	return err
}

// subscribe records a subscription change and forwards it to the native
// socket once there is one.
func (s *socket) subscribe(name, topic string) error {
	if name == engine.OptSubscribe {
		s.subs = append(s.subs, topic)
	} else {
		for i, t := range s.subs {
			if t == topic {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
	if s.zs == nil {
		return nil
	}
	zname := zmq4.OptionSubscribe
	if name == engine.OptUnsubscribe {
		zname = zmq4.OptionUnsubscribe
	}
	return translate(s.zs.SetOption(zname, topic))
}

func (s *socket) GetOption(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDone {
		return nil, engine.ENOTSOCK
	}
	o := &s.opts
	switch name {
	case engine.OptLinger:
		return o.linger, nil
	case engine.OptSendHWM:
		return o.sendHWM, nil
	case engine.OptRecvHWM:
		return o.recvHWM, nil
	case engine.OptSendTimeout:
		return o.sendTimeout, nil
	case engine.OptRecvTimeout:
		return o.recvTimeout, nil
	case engine.OptTCPKeepAlive:
		return o.tcpKeepAlive, nil
	case engine.OptIdentity:
		return append([]byte(nil), o.identity...), nil
	case engine.OptReconnectInterval:
		return o.reconnectIvl, nil
	case engine.OptRouterMandatory:
		return false, nil
	case engine.OptPlainServer:
		return o.plainServer, nil
	case engine.OptPlainUsername:
		return o.plainUser, nil
	case engine.OptPlainPassword:
		return o.plainPass, nil
	case engine.OptCurveServer, engine.OptCurvePublicKey, engine.OptCurveSecretKey, engine.OptCurveServerKey:
		return nil, engine.Errorf(engine.ENOTSUP, "%s", name)
	}
	return nil, engine.Errorf(engine.EINVAL, "option %q is not readable", name)
}

// materialize creates the native socket from the current options and starts
// the pumps. The caller holds s.mu.
//
// REP is built on a zmq4 ROUTER: zmq4's REP reads ahead and answers whichever
// peer it read from last, so the envelope is kept here per request instead.
func (s *socket) materialize() error {
	if s.zs != nil {
		return nil
	}
	if s.ctx.isTerminated() {
		return engine.ETERM
	}

	var sec zmq4.Security = null.Security()
	if s.opts.plainServer || s.opts.plainUser != "" {
		sec = plain.Security(s.opts.plainUser, s.opts.plainPass)
	}
	opts := []zmq4.Option{
		zmq4.WithSecurity(sec),
		zmq4.WithDialerRetry(s.opts.reconnectIvl),
	}
	if len(s.opts.identity) > 0 {
		opts = append(opts, zmq4.WithID(zmq4.SocketIdentity(s.opts.identity)))
	}

	zctx, cancel := context.WithCancel(s.ctx.base)
	var zs zmq4.Socket
	switch s.typ {
	case engine.Pair:
		zs = zmq4.NewPair(zctx, opts...)
	case engine.Pub:
		zs = zmq4.NewPub(zctx, opts...)
	case engine.Sub:
		zs = zmq4.NewSub(zctx, opts...)
	case engine.Req:
		zs = zmq4.NewReq(zctx, opts...)
	case engine.Rep:
		zs = zmq4.NewRouter(zctx, opts...)
	case engine.Dealer:
		zs = zmq4.NewDealer(zctx, opts...)
	case engine.Router:
		zs = zmq4.NewRouter(zctx, opts...)
	case engine.Pull:
		zs = zmq4.NewPull(zctx, opts...)
	case engine.Push:
		zs = zmq4.NewPush(zctx, opts...)
	}

	for _, topic := range s.subs {
		if err := zs.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			cancel()
			zs.Close()
			return translate(err)
		}
	}

	s.zs = zs
	s.cancel = cancel
	if s.typ.CanRecv() {
		s.pumped = make(chan struct{})
		go s.pump(zs, s.in, zctx.Done())
	}
	if s.typ.CanSend() {
		s.drained = make(chan struct{})
		go s.drain(zs, s.queue, s.slots, zctx.Done())
	}
	close(s.ready)
	return nil
}

// drain hands queued messages to the native socket one at a time. A slot is
// held until zmq4 has written the message, which is what bounds the queue.
func (s *socket) drain(zs zmq4.Socket, queue <-chan [][]byte, slots <-chan struct{}, done <-chan struct{}) {
	defer close(s.drained)
	for {
		select {
		case frames := <-queue:
			err := zs.Send(zmq4.NewMsgFrom(frames...))
			<-slots
			if err != nil {
				s.dropped(err)
			}
			s.sig.Notify()
		case <-done:
			return
		}
	}
}

// dropped records a message zmq4 failed to write. A REQ socket would wait
// forever for its reply, so the failure is handed to its next Recv.
func (s *socket) dropped(err error) {
	if s.typ != engine.Req {
		return
	}
	s.mu.Lock()
	if s.isDone {
		s.mu.Unlock()
		return
	}
	s.failed = engine.Wrap(engine.EHOSTUNREACH, err)
	in := s.in
	s.mu.Unlock()
	select {
	case in <- nil:
	default:
	}
}

// pump moves whole messages from the native socket into in until done.
func (s *socket) pump(zs zmq4.Socket, in chan<- [][]byte, done <-chan struct{}) {
	defer close(s.pumped)
	for {
		msg, err := zs.Recv()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		frames := msg.Frames
		if len(frames) == 0 {
			frames = [][]byte{{}}
		}
		if s.typ == engine.Rep && envelopeEnd(frames) < 0 {
			continue
		}
		select {
		case in <- frames:
			s.sig.Notify()
		case <-done:
			return
		}
	}
}

// envelopeEnd returns the index of the empty delimiter frame that ends the
// routing envelope of a request arriving at REP, or -1 when it is malformed.
func envelopeEnd(frames [][]byte) int {
	for i := 1; i < len(frames)-1; i++ {
		if len(frames[i]) == 0 {
			return i
		}
	}
	return -1
}

// check reports why s cannot take a call. The caller holds s.mu.
func (s *socket) check() error {
	if s.ctx.isTerminated() {
		return engine.ETERM
	}
	if s.isDone {
		return engine.ENOTSOCK
	}
	return nil
}

func (s *socket) Bind(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	listen, last, err := resolveBind(endpoint)
	if err != nil {
		s.emit(engine.EventBindFailed, uint32(engine.ErrnoOf(err)), endpoint)
		return err
	}
	if err := s.materialize(); err != nil {
		return err
	}
	if err := s.zs.Listen(listen); err != nil {
		err = translate(err)
		s.emit(engine.EventBindFailed, uint32(engine.ErrnoOf(err)), endpoint)
		return err
	}
	s.bound = append(s.bound, last)
	s.last = last
	s.emit(engine.EventListening, 0, last)
	return nil
}

func (s *socket) Connect(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if isWildcardConnect(endpoint) {
		return invalidEndpoint(endpoint)
	}

	if p := s.ctx.lookupMonitor(endpoint); p != nil {
		if s.typ != engine.Pair || s.zs != nil {
			return engine.Errorf(engine.ENOCOMPATPROTO, "monitor endpoint %s needs a fresh PAIR socket", endpoint)
		}
		p.attach(s)
		s.tap = p
		s.in = p.ch
		s.dialed = append(s.dialed, endpoint)
		return nil
	}

	if err := s.materialize(); err != nil {
		return err
	}
	if err := s.zs.Dial(endpoint); err != nil {
		err = translate(err)
		s.emit(engine.EventConnectRetried, uint32(engine.ErrnoOf(err)), endpoint)
		return err
	}
	s.dialed = append(s.dialed, endpoint)
	s.emit(engine.EventConnected, 0, endpoint)
	if s.opts.plainServer || s.opts.plainUser != "" {
		s.emit(engine.EventHandshakeSucceeded, 0, endpoint)
	}
	return nil
}

func (s *socket) Unbind(endpoint string) error {
	return engine.Errorf(engine.ENOTSUP, "unbind %s", endpoint)
}

func (s *socket) Disconnect(endpoint string) error {
	return engine.Errorf(engine.ENOTSUP, "disconnect %s", endpoint)
}

func (s *socket) Send(frame []byte, flags engine.Flag) error {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.typ.CanSend() {
		s.mu.Unlock()
		return engine.Errorf(engine.ENOTSUP, "send on %s socket", s.typ)
	}
	if len(s.out) == 0 {
		if s.typ == engine.Req && s.waiting {
			s.mu.Unlock()
			return engine.Errorf(engine.EFSM, "request already outstanding")
		}
		if s.typ == engine.Rep && !s.owing {
			s.mu.Unlock()
			return engine.Errorf(engine.EFSM, "no request to reply to")
		}
	}
	s.out = append(s.out, frame)
	if flags&engine.SendMore != 0 {
		s.mu.Unlock()
		return nil
	}

	pending := s.out
	s.out = nil
	ready, slots := s.ready, s.slots
	timeout := s.opts.sendTimeout
	s.mu.Unlock()

	err := s.admit(ready, slots, flags, timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.isDone {
		<-slots
		err = engine.ENOTSOCK
	}
	if err != nil {
		if engine.ErrnoOf(err) == engine.EAGAIN && len(pending) > 1 {
			s.out = pending[:len(pending)-1]
		}
		return err
	}

	if s.typ == engine.Rep {
		pending = append(append(make([][]byte, 0, len(s.env)+len(pending)), s.env...), pending...)
		s.env = nil
	}
	s.queue <- pending
	switch s.typ {
	case engine.Req:
		s.waiting = true
	case engine.Rep:
		s.owing = false
	}
	return nil
}

// admit waits for the socket to be attached and for room in the outbound
// queue, then takes a slot.
func (s *socket) admit(ready <-chan struct{}, slots chan<- struct{}, flags engine.Flag, timeout time.Duration) error {
	if flags&engine.DontWait != 0 || timeout == 0 {
		select {
		case <-ready:
		default:
			return engine.Errorf(engine.EAGAIN, "no connections")
		}
		select {
		case slots <- struct{}{}:
			return nil
		default:
			return engine.Errorf(engine.EAGAIN, "send queue full")
		}
	}

	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case <-ready:
	case <-expire:
		return engine.Errorf(engine.EAGAIN, "no connections")
	case <-s.closed:
		return engine.ENOTSOCK
	case <-s.ctx.done:
		return engine.ETERM
	}
	select {
	case slots <- struct{}{}:
		return nil
	case <-expire:
		return engine.Errorf(engine.EAGAIN, "send queue full")
	case <-s.closed:
		return engine.ENOTSOCK
	case <-s.ctx.done:
		return engine.ETERM
	}
}

func (s *socket) Recv(flags engine.Flag) ([]byte, bool, error) {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return nil, false, err
	}
	if !s.typ.CanRecv() {
		s.mu.Unlock()
		return nil, false, engine.Errorf(engine.ENOTSUP, "recv on %s socket", s.typ)
	}
	if len(s.cur) > 0 {
		defer s.mu.Unlock()
		return s.pop()
	}
	if s.typ == engine.Req && !s.waiting {
		s.mu.Unlock()
		return nil, false, engine.Errorf(engine.EFSM, "no request outstanding")
	}
	if s.typ == engine.Rep && s.owing {
		s.mu.Unlock()
		return nil, false, engine.Errorf(engine.EFSM, "reply owed")
	}
	in := s.in
	timeout := s.opts.recvTimeout
	s.mu.Unlock()

	var frames [][]byte
	if flags&engine.DontWait != 0 || timeout == 0 {
		select {
		case frames = <-in:
		default:
			return nil, false, engine.EAGAIN
		}
	} else {
		var expire <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expire = t.C
		}
		select {
		case frames = <-in:
		case <-expire:
			return nil, false, engine.EAGAIN
		case <-s.closed:
			return nil, false, engine.ENOTSOCK
		case <-s.ctx.done:
			return nil, false, engine.ETERM
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.typ {
	case engine.Req:
		s.waiting = false
		if frames == nil {
			err := s.failed
			s.failed = nil
			return nil, false, err
		}
	case engine.Rep:
		n := envelopeEnd(frames)
		s.env = frames[:n+1]
		frames = frames[n+1:]
		s.owing = true
	}
	s.cur = frames
	return s.pop()
}

func (s *socket) pop() ([]byte, bool, error) {
	f := s.cur[0]
	s.cur = s.cur[1:]
	return f, len(s.cur) > 0, nil
}

func (s *socket) Events() (engine.Readiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	var r engine.Readiness
	if s.typ.CanRecv() && (len(s.cur) > 0 || len(s.in) > 0) {
		switch {
		case s.typ == engine.Req && !s.waiting:
		case s.typ == engine.Rep && s.owing && len(s.cur) == 0:
		default:
			r |= engine.PollIn
		}
	}
	if s.typ.CanSend() && s.zs != nil && len(s.slots) < cap(s.slots) {
		switch {
		case s.typ == engine.Req && s.waiting:
		case s.typ == engine.Rep && !s.owing:
		default:
			r |= engine.PollOut
		}
	}
	return r, nil
}

func (s *socket) Monitor(endpoint string, mask engine.EventMask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDone {
		return engine.ENOTSOCK
	}
	s.stopMonitor()
	if endpoint == "" {
		return nil
	}
	p, err := s.ctx.openMonitor(endpoint, mask)
	if err != nil {
		return err
	}
	s.mon = p
	return nil
}

func (s *socket) stopMonitor() {
	if s.mon == nil {
		return
	}
	s.mon.publish(engine.EventMonitorStopped, 0, "")
	s.ctx.closeMonitor(s.mon)
	s.mon = nil
}

// emit publishes a synthesised event. The caller holds s.mu.
func (s *socket) emit(code engine.EventMask, value uint32, endpoint string) {
	if s.mon != nil {
		s.mon.publish(code, value, endpoint)
	}
}

// Close releases the native socket. Queued outbound messages get up to the
// linger period to reach zmq4 unless the context is shutting down.
func (s *socket) Close() error {
	s.mu.Lock()
	if s.isDone {
		s.mu.Unlock()
		return engine.ENOTSOCK
	}
	s.isDone = true
	close(s.closed)
	slots, linger := s.slots, s.opts.linger
	attached := s.zs != nil
	s.mu.Unlock()

	if attached {
		s.flush(slots, linger)
	}

	s.mu.Lock()
	for _, ep := range s.bound {
		s.emit(engine.EventClosed, 0, ep)
	}
	s.stopMonitor()
	if s.tap != nil {
		s.tap.attach(nil)
	}

	var err error
	if s.zs != nil {
		err = s.zs.Close()
		s.cancel()
	}
	pumped, drained := s.pumped, s.drained
	s.mu.Unlock()

	if pumped != nil {
		<-pumped
	}
	if drained != nil {
		<-drained
	}
	s.ctx.release(s)
	s.sig.Notify()
	if err != nil && !s.ctx.isTerminated() {
		return translate(err)
	}
	return nil
}

// flush waits for the outbound queue to empty, for at most linger.
func (s *socket) flush(slots chan struct{}, linger time.Duration) {
	if linger == 0 || len(slots) == 0 {
		return
	}
	var expire <-chan time.Time
	if linger > 0 {
		t := time.NewTimer(linger)
		defer t.Stop()
		expire = t.C
	}
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for len(slots) > 0 {
		select {
		case <-tick.C:
		case <-expire:
			return
		case <-s.ctx.done:
			return
		}
	}
}
