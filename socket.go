package zsock

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/multifrost/zsock/engine"
)

// Role is the messaging pattern role of a socket, fixed at construction.
type Role int

const (
	RolePair Role = iota
	RolePub
	RoleSub
	RoleReq
	RoleRep
	RoleDealer
	RoleRouter
	RolePull
	RolePush
)

// Draft roles send and receive single part messages only. A Server addresses
// each Client by the routing id its messages carry; a Radio publishes to the
// groups a Dish has joined.
const (
	RoleServer Role = iota + 12
	RoleClient
	RoleRadio
	RoleDish
)

func (r Role) native() engine.SocketType { return engine.SocketType(r) }

func (r Role) String() string { return r.native().String() }

// CanSend reports whether the role has an outbound direction.
func (r Role) CanSend() bool { return r.native().CanSend() }

// CanRecv reports whether the role has an inbound direction.
func (r Role) CanRecv() bool { return r.native().CanRecv() }

func (r Role) valid() bool { return r.native().Valid() }

func (r Role) draft() bool { return r.native().Draft() }

// Flag modifies Send and Recv.
type Flag int

const (
	// DontWait fails with ErrWouldBlock instead of blocking.
	DontWait Flag = 1 << iota
	// SendMore marks a frame as followed by more frames of the same message.
	SendMore
)

func (f Flag) native() engine.Flag { return engine.Flag(f) }

type socketState int

const (
	stateCreated socketState = iota
	stateAttached
	stateClosed
)

// Socket is a socket of any role. Operations the role does not allow fail
// with ErrInvalidState; the typed wrappers such as ReqSocket leave them out
// altogether.
//
// A Socket must be used by one goroutine at a time. Close is the exception:
// it may be called from anywhere and unblocks a pending Send or Recv, which
// then fails with ErrSocketClosed.
type Socket struct {
	ctx  *Context
	role Role
	raw  engine.Socket
	id   string
	log  *zap.Logger

	mu        sync.Mutex
	state     socketState
	values    map[string]any
	subs      map[string]struct{}
	groups    map[string]struct{}
	bound     []string
	connected []string
	pollers   map[*Poller]struct{}
	monitor   *Monitor

	sendMore bool
	recvMore bool
	awaiting bool // Req: a reply is owed to us
	owing    bool // Rep: we owe a reply
}

func newSocket(c *Context, role Role, cfg *SocketConfig) (*Socket, error) {
	if !role.valid() {
		return nil, newError(KindInvalidState, opSocket, "unknown role")
	}
	if c.IsTerminated() {
		return nil, &Error{Kind: KindContextTerminated, Op: opSocket}
	}
	values, err := cfg.resolve(role, nil)
	if err != nil {
		return nil, err
	}
	effective := defaultValues()
	for k, v := range values {
		effective[k] = v
	}

	raw, err := c.raw.NewSocket(role.native())
	if err != nil {
		return nil, wrapEngine(opSocket, 0, err)
	}

	id := uuid.New().String()
	s := &Socket{
		ctx:    c,
		role:   role,
		raw:    raw,
		id:     id,
		log:    c.log.With(zap.String("role", role.String()), zap.String("socket", id)),
		values: make(map[string]any),
		subs:   make(map[string]struct{}),
		groups: make(map[string]struct{}),
	}
	if _, err := s.apply(effective); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if err := c.adopt(s); err != nil {
		_ = raw.Close()
		return nil, err
	}
	s.log.Debug("socket created")
	return s, nil
}

// Role returns the socket's role.
func (s *Socket) Role() Role { return s.role }

// ID returns a unique id for logs.
func (s *Socket) ID() string { return s.id }

func (s *Socket) base() *Socket { return s }

// fail records err and returns it.
func (s *Socket) fail(err error) error {
	s.ctx.metrics.failed(err)
	return err
}

// usable reports why s cannot perform op. The caller holds s.mu.
func (s *Socket) usable(op string) error {
	if s.state == stateClosed {
		return &Error{Kind: KindSocketClosed, Op: op}
	}
	if s.ctx.IsTerminated() {
		return &Error{Kind: KindContextTerminated, Op: op}
	}
	return nil
}

// apply pushes values to the engine in the documented order. It returns the
// names applied so far, also on failure.
func (s *Socket) apply(values map[string]any) ([]string, error) {
	var applied []string
	for _, name := range optionOrder {
		v, ok := values[name]
		if !ok {
			continue
		}
		if name == OptionSubscribe {
			for _, topic := range v.([][]byte) {
				if _, dup := s.subs[string(topic)]; dup {
					continue
				}
				if err := s.raw.SetOption(engine.OptSubscribe, topic); err != nil {
					return applied, s.optionError(name, err)
				}
				s.subs[string(topic)] = struct{}{}
			}
			applied = append(applied, name)
			continue
		}
		if err := s.raw.SetOption(name, v); err != nil {
			return applied, s.optionError(name, err)
		}
		s.values[name] = v
		applied = append(applied, name)
	}
	return applied, nil
}

func (s *Socket) optionError(name string, err error) *Error {
	e := wrapEngine(opSetOption, 0, err)
	if e.Option == "" {
		e.Option = name
	}
	return e
}

// Configure applies cfg to an existing socket. Options the engine only
// accepts before the first bind or connect fail with ErrInvalidState once the
// socket is attached, unless the value is unchanged. On failure the options
// already applied are restored.
func (s *Socket) Configure(cfg *SocketConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opSetOption); err != nil {
		return s.fail(err)
	}
	return s.fail(s.configure(cfg))
}

func (s *Socket) configure(cfg *SocketConfig) error {
	values, err := cfg.resolve(s.role, s.values)
	if err != nil {
		return err
	}

	changed := make(map[string]any, len(values))
	for name, v := range values {
		if name == OptionSubscribe {
			changed[name] = v
			continue
		}
		if prev, ok := s.values[name]; ok && sameValue(prev, v) {
			continue
		}
		if s.state == stateAttached {
			if spec, ok := s.raw.OptionSpec(name); ok && spec.Mutability == engine.BeforeAttach {
				return &Error{Kind: KindInvalidState, Op: opSetOption, Option: name, Reason: "only settable before bind or connect"}
			}
		}
		changed[name] = v
	}

	prevValues := make(map[string]any, len(s.values))
	for k, v := range s.values {
		prevValues[k] = v
	}
	prevSubs := make(map[string]struct{}, len(s.subs))
	for k := range s.subs {
		prevSubs[k] = struct{}{}
	}

	applied, err := s.apply(changed)
	if err == nil {
		return nil
	}
	for i := len(applied) - 1; i >= 0; i-- {
		name := applied[i]
		if name == OptionSubscribe {
			for topic := range s.subs {
				if _, keep := prevSubs[topic]; !keep {
					_ = s.raw.SetOption(engine.OptUnsubscribe, []byte(topic))
					delete(s.subs, topic)
				}
			}
			continue
		}
		if prev, ok := prevValues[name]; ok {
			_ = s.raw.SetOption(name, prev)
			s.values[name] = prev
		} else {
			delete(s.values, name)
		}
	}
	if sub, ok := changed[OptionSubscribe]; ok && !contains(applied, OptionSubscribe) {
		for _, topic := range sub.([][]byte) {
			if _, keep := prevSubs[string(topic)]; !keep {
				if _, added := s.subs[string(topic)]; added {
					_ = s.raw.SetOption(engine.OptUnsubscribe, topic)
					delete(s.subs, string(topic))
				}
			}
		}
	}
	return err
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func sameValue(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok && bok {
		return bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// SetOption sets one option by name.
func (s *Socket) SetOption(name string, value any) error {
	return s.Configure(NewSocketConfig().Set(name, value))
}

// Option reads an option's current value from the engine.
func (s *Socket) Option(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opGetOption); err != nil {
		return nil, s.fail(err)
	}
	v, err := s.raw.GetOption(name)
	if err != nil {
		return nil, s.fail(s.optionError(name, err))
	}
	return v, nil
}

// Subscriptions returns the active prefix filters of a Sub socket.
func (s *Socket) Subscriptions() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, 0, len(s.subs))
	for t := range s.subs {
		out = append(out, []byte(t))
	}
	return out
}

// Subscribe adds a prefix filter to a Sub socket.
func (s *Socket) Subscribe(topic []byte) error {
	if s.role != RoleSub {
		return s.fail(&Error{Kind: KindInvalidState, Op: opSetOption, Option: OptionSubscribe, Reason: "only Sub sockets subscribe"})
	}
	return s.SetOption(OptionSubscribe, topic)
}

// Unsubscribe removes a prefix filter. Removing an absent filter is a no-op.
func (s *Socket) Unsubscribe(topic []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleSub {
		return s.fail(&Error{Kind: KindInvalidState, Op: opSetOption, Option: engine.OptUnsubscribe, Reason: "only Sub sockets unsubscribe"})
	}
	if err := s.usable(opSetOption); err != nil {
		return s.fail(err)
	}
	if _, ok := s.subs[string(topic)]; !ok {
		return nil
	}
	if err := s.raw.SetOption(engine.OptUnsubscribe, topic); err != nil {
		return s.fail(s.optionError(engine.OptUnsubscribe, err))
	}
	delete(s.subs, string(topic))
	return nil
}

// Groups returns the groups a Dish socket has joined.
func (s *Socket) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	return out
}

// Join adds a Dish socket to group. Groups are 1 to MaxGroupLength bytes.
func (s *Socket) Join(group string) error {
	return s.membership(OptionJoin, group)
}

// Leave removes a Dish socket from a group it joined.
func (s *Socket) Leave(group string) error {
	return s.membership(OptionLeave, group)
}

func (s *Socket) membership(option, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleDish {
		return s.fail(&Error{Kind: KindInvalidState, Op: opSetOption, Option: option, Reason: "only Dish sockets join groups"})
	}
	if err := s.usable(opSetOption); err != nil {
		return s.fail(err)
	}
	if reason := checkGroup(group); reason != "" {
		return s.fail(rejected(option, reason))
	}
	_, joined := s.groups[group]
	if option == OptionJoin && joined {
		return s.fail(rejected(option, "already joined "+group))
	}
	if option == OptionLeave && !joined {
		return s.fail(rejected(option, "not a member of "+group))
	}
	if err := s.raw.SetOption(option, []byte(group)); err != nil {
		return s.fail(s.optionError(option, err))
	}
	if option == OptionJoin {
		s.groups[group] = struct{}{}
	} else {
		delete(s.groups, group)
	}
	return nil
}

func endpointError(op, endpoint string, err error) error {
	e, ok := err.(*Error)
	if !ok {
		e = wrapEngine(op, 0, err)
	}
	e.Op = op
	e.Endpoint = endpoint
	return e
}

// Bind listens on endpoint. A wildcard TCP port is resolved; LastEndpoint
// reports the result.
func (s *Socket) Bind(endpoint string) error {
	if _, err := ParseEndpoint(endpoint); err != nil {
		return s.fail(endpointError(opBind, endpoint, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opBind); err != nil {
		return s.fail(err)
	}
	if err := s.raw.Bind(endpoint); err != nil {
		return s.fail(endpointError(opBind, endpoint, err))
	}
	s.state = stateAttached
	s.bound = append(s.bound, s.raw.LastEndpoint())
	s.log.Debug("bound", zap.String("endpoint", s.raw.LastEndpoint()))
	return nil
}

// Connect dials endpoint. Connecting twice to the same endpoint fails with
// ErrInvalidState.
func (s *Socket) Connect(endpoint string) error {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return s.fail(endpointError(opConnect, endpoint, err))
	}
	if ep.IsWildcard() {
		return s.fail(&Error{Kind: KindInvalidEndpoint, Op: opConnect, Endpoint: endpoint, Reason: "wildcard port on connect"})
	}
	if ep.Transport == TCP && ep.Host == "*" {
		return s.fail(&Error{Kind: KindInvalidEndpoint, Op: opConnect, Endpoint: endpoint, Reason: "wildcard host on connect"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opConnect); err != nil {
		return s.fail(err)
	}
	for _, c := range s.connected {
		if c == endpoint {
			return s.fail(&Error{Kind: KindInvalidState, Op: opConnect, Endpoint: endpoint, Reason: "already connected"})
		}
	}
	if err := s.raw.Connect(endpoint); err != nil {
		return s.fail(endpointError(opConnect, endpoint, err))
	}
	s.state = stateAttached
	s.connected = append(s.connected, endpoint)
	s.log.Debug("connected", zap.String("endpoint", endpoint))
	return nil
}

// Unbind stops listening on endpoint, which may be the string given to Bind
// or the resolved LastEndpoint.
func (s *Socket) Unbind(endpoint string) error {
	if _, err := ParseEndpoint(endpoint); err != nil {
		return s.fail(endpointError(opUnbind, endpoint, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opUnbind); err != nil {
		return s.fail(err)
	}
	if err := s.raw.Unbind(endpoint); err != nil {
		return s.fail(endpointError(opUnbind, endpoint, err))
	}
	s.bound = removeString(s.bound, endpoint)
	return nil
}

// Disconnect drops the connection made to endpoint.
func (s *Socket) Disconnect(endpoint string) error {
	if _, err := ParseEndpoint(endpoint); err != nil {
		return s.fail(endpointError(opDisconnect, endpoint, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opDisconnect); err != nil {
		return s.fail(err)
	}
	if err := s.raw.Disconnect(endpoint); err != nil {
		return s.fail(endpointError(opDisconnect, endpoint, err))
	}
	s.connected = removeString(s.connected, endpoint)
	return nil
}

func removeString(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// LastEndpoint returns the resolved address of the latest bind.
func (s *Socket) LastEndpoint() string {
	return s.raw.LastEndpoint()
}

// Endpoints lists the bound and connected endpoints.
func (s *Socket) Endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bound)+len(s.connected))
	out = append(out, s.bound...)
	return append(out, s.connected...)
}

// Send sends one frame and takes ownership of msg's payload: after a
// successful call msg is empty. On a Router socket the first frame of a
// message goes to the peer named by msg.Identity().
func (s *Socket) Send(msg *Message, flags Flag) error {
	s.mu.Lock()
	if err := s.usable(opSend); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	if err := s.checkSend(msg, flags); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	first := !s.sendMore
	s.mu.Unlock()

	if lead, ok := s.leadFrame(msg); first && ok {
		if err := s.raw.Send(lead, engine.SendMore); err != nil {
			return s.fail(s.ioError(opSend, flags, err))
		}
		s.mu.Lock()
		s.sendMore = true
		s.mu.Unlock()
	}

	n := msg.Len()
	if err := s.raw.Send(msg.Bytes(), flags.native()); err != nil {
		if flags&SendMore == 0 && engine.ErrnoOf(err) != engine.EAGAIN {
			// the engine dropped the partial message
			s.mu.Lock()
			s.sendMore = false
			s.mu.Unlock()
		}
		return s.fail(s.ioError(opSend, flags, err))
	}
	msg.take()

	s.mu.Lock()
	s.sendMore = flags&SendMore != 0
	if !s.sendMore {
		switch s.role {
		case RoleReq:
			s.awaiting = true
		case RoleRep:
			s.owing = false
		}
	}
	s.mu.Unlock()
	s.ctx.metrics.sent(s.role, n)
	return nil
}

// leadFrame returns the addressing frame the engine expects ahead of the
// body for roles that route by identity, routing id or group.
func (s *Socket) leadFrame(msg *Message) ([]byte, bool) {
	switch s.role {
	case RoleRouter:
		return msg.Identity(), true
	case RoleServer:
		return binary.BigEndian.AppendUint32(nil, msg.RoutingID()), true
	case RoleRadio:
		return []byte(msg.Group()), true
	}
	return nil, false
}

func (s *Socket) checkSend(msg *Message, flags Flag) error {
	if msg == nil {
		return newError(KindInvalidState, opSend, "nil message")
	}
	if !s.role.CanSend() {
		return newError(KindInvalidState, opSend, s.role.String()+" sockets cannot send")
	}
	if s.recvMore {
		return newError(KindInvalidState, opSend, "a multi-part message is still being received")
	}
	if s.role.draft() && flags&SendMore != 0 {
		return newError(KindInvalidState, opSend, s.role.String()+" sockets send single part messages")
	}
	if s.sendMore {
		return nil
	}
	switch s.role {
	case RoleReq:
		if s.awaiting {
			return newError(KindInvalidState, opSend, "Req must receive the reply before sending again")
		}
	case RoleRep:
		if !s.owing {
			return newError(KindInvalidState, opSend, "Rep must receive a request before replying")
		}
	case RoleRouter:
		if len(msg.Identity()) == 0 {
			return newError(KindInvalidState, opSend, "Router messages need a peer identity")
		}
	case RoleServer:
		if msg.RoutingID() == 0 {
			return newError(KindInvalidState, opSend, "Server messages need a routing id")
		}
	case RoleRadio:
		if reason := checkGroup(msg.Group()); reason != "" {
			return newError(KindInvalidState, opSend, reason)
		}
	}
	return nil
}

// ioError maps an engine failure of a blocking call. A socket closed under
// the call reports ErrSocketClosed whatever the engine said.
func (s *Socket) ioError(op string, flags Flag, err error) error {
	s.mu.Lock()
	closed := s.state == stateClosed
	s.mu.Unlock()
	if closed {
		return &Error{Kind: KindSocketClosed, Op: op, Err: err}
	}
	return wrapEngine(op, flags, err)
}

// SendMessage sends frames as one multi-part message, blocking as needed.
func (s *Socket) SendMessage(frames ...[]byte) error {
	return s.SendMultipart(Multipart(frames), 0)
}

// SendMultipart sends every frame of mp as one message. On a Router socket the
// first frame is the peer identity.
func (s *Socket) SendMultipart(mp Multipart, flags Flag) error {
	frames := mp
	var identity []byte
	if s.role == RoleRouter {
		if len(frames) < 2 {
			return s.fail(newError(KindInvalidState, opSend, "Router multipart needs an identity and a body"))
		}
		identity, frames = frames[0], frames[1:]
	}
	if len(frames) == 0 {
		return s.fail(newError(KindInvalidState, opSend, "empty multipart message"))
	}
	if s.role.draft() && len(frames) > 1 {
		return s.fail(newError(KindInvalidState, opSend, s.role.String()+" sockets send single part messages"))
	}
	flags &^= SendMore
	for i, f := range frames {
		msg := NewMessage(f)
		if i == 0 && identity != nil {
			msg.SetIdentity(identity)
		}
		fl := flags
		if i < len(frames)-1 {
			fl |= SendMore
		}
		if err := s.Send(msg, fl); err != nil {
			return err
		}
	}
	return nil
}

// Recv receives one frame. More on the result reports whether the rest of a
// multi-part message is still to be read; until it is, only Recv is allowed.
// On a Router socket the first frame carries the sender's identity.
func (s *Socket) Recv(flags Flag) (*Message, error) {
	s.mu.Lock()
	if err := s.usable(opRecv); err != nil {
		s.mu.Unlock()
		return nil, s.fail(err)
	}
	if err := s.checkRecv(); err != nil {
		s.mu.Unlock()
		return nil, s.fail(err)
	}
	first := !s.recvMore
	s.mu.Unlock()

	var lead []byte
	led := false
	if first && (s.role == RoleRouter || s.role == RoleServer || s.role == RoleDish) {
		f, more, err := s.raw.Recv(flags.native())
		if err != nil {
			return nil, s.fail(s.ioError(opRecv, flags, err))
		}
		if !more {
			return nil, s.fail(newError(KindInvalidState, opRecv, s.role.String()+" message without a body"))
		}
		lead, led = f, true
	}

	data, more, err := s.raw.Recv(flags.native())
	if err != nil {
		if led {
			s.mu.Lock()
			s.recvMore = true
			s.mu.Unlock()
		}
		return nil, s.fail(s.ioError(opRecv, flags, err))
	}

	s.mu.Lock()
	s.recvMore = more
	if !more {
		switch s.role {
		case RoleReq:
			s.awaiting = false
		case RoleRep:
			s.owing = true
		}
	}
	s.mu.Unlock()
	s.ctx.metrics.received(s.role, len(data))
	msg := &Message{data: data, more: more}
	switch {
	case !led:
	case s.role == RoleRouter:
		msg.identity = lead
	case s.role == RoleServer && len(lead) == 4:
		msg.routingID = binary.BigEndian.Uint32(lead)
	case s.role == RoleDish:
		msg.group = string(lead)
	}
	return msg, nil
}

func (s *Socket) checkRecv() error {
	if !s.role.CanRecv() {
		return newError(KindInvalidState, opRecv, s.role.String()+" sockets cannot receive")
	}
	if s.sendMore {
		return newError(KindInvalidState, opRecv, "a multi-part message is still being sent")
	}
	if s.recvMore {
		return nil
	}
	switch s.role {
	case RoleReq:
		if !s.awaiting {
			return newError(KindInvalidState, opRecv, "Req must send a request first")
		}
	case RoleRep:
		if s.owing {
			return newError(KindInvalidState, opRecv, "Rep must reply before receiving again")
		}
	}
	return nil
}

// RecvMultipart receives a whole message. On a Router socket the first frame
// is the sender's identity.
func (s *Socket) RecvMultipart(flags Flag) (Multipart, error) {
	s.mu.Lock()
	partial := s.recvMore
	s.mu.Unlock()
	if partial {
		return nil, s.fail(newError(KindInvalidState, opRecv, "a multi-part message is partially received"))
	}

	var out Multipart
	for {
		msg, err := s.Recv(flags)
		if err != nil {
			return nil, err
		}
		if id := msg.Identity(); id != nil {
			out = append(out, id)
		}
		out = append(out, msg.Bytes())
		if !msg.More() {
			return out, nil
		}
		flags &^= DontWait
	}
}

// Close releases the socket, delivering pending outbound messages for up to
// the linger period. Closing twice is a no-op.
func (s *Socket) Close() error {
	return s.closeWithLinger(-2)
}

// closeWithLinger closes s, overriding linger unless it is -2.
func (s *Socket) closeWithLinger(linger time.Duration) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	pollers := s.pollers
	s.pollers = nil
	mon := s.monitor
	s.mu.Unlock()

	for p := range pollers {
		p.evict(s)
	}
	if linger != -2 {
		_ = s.raw.SetOption(engine.OptLinger, linger)
	}

	err := s.raw.Close()
	if mon != nil {
		mon.detach()
	}
	s.ctx.release(s)
	s.log.Debug("socket closed")
	if err != nil && engine.ErrnoOf(err) != engine.ENOTSOCK {
		return s.fail(wrapEngine(opClose, 0, err))
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Socket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}

func (s *Socket) addPoller(p *Poller) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return false
	}
	if s.pollers == nil {
		s.pollers = make(map[*Poller]struct{})
	}
	s.pollers[p] = struct{}{}
	return true
}

func (s *Socket) removePoller(p *Poller) {
	s.mu.Lock()
	delete(s.pollers, p)
	s.mu.Unlock()
}
