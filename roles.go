package zsock

// Pollable is implemented by *Socket and every typed socket, so any of them
// can be registered with a Poller or passed where a socket is expected.
type Pollable interface {
	base() *Socket
}

// Typed sockets expose only the operations their role allows. They are thin
// views of a *Socket; Raw returns it for code that needs the dynamic API.

type common struct{ s *Socket }

func (c common) base() *Socket                     { return c.s }
func (c common) Raw() *Socket                      { return c.s }
func (c common) ID() string                        { return c.s.id }
func (c common) Bind(endpoint string) error        { return c.s.Bind(endpoint) }
func (c common) Connect(endpoint string) error     { return c.s.Connect(endpoint) }
func (c common) Unbind(endpoint string) error      { return c.s.Unbind(endpoint) }
func (c common) Disconnect(endpoint string) error  { return c.s.Disconnect(endpoint) }
func (c common) LastEndpoint() string              { return c.s.LastEndpoint() }
func (c common) Endpoints() []string               { return c.s.Endpoints() }
func (c common) Configure(cfg *SocketConfig) error { return c.s.Configure(cfg) }
func (c common) SetOption(name string, v any) error {
	return c.s.SetOption(name, v)
}
func (c common) Option(name string) (any, error) { return c.s.Option(name) }
func (c common) Monitor(events ...EventType) (*Monitor, error) {
	return c.s.Monitor(events...)
}
func (c common) Close() error   { return c.s.Close() }
func (c common) IsClosed() bool { return c.s.IsClosed() }

type sender struct{ s *Socket }

func (w sender) Send(msg *Message, flags Flag) error      { return w.s.Send(msg, flags) }
func (w sender) SendMessage(frames ...[]byte) error       { return w.s.SendMessage(frames...) }
func (w sender) SendMultipart(mp Multipart, f Flag) error { return w.s.SendMultipart(mp, f) }

// SendString sends text as a single frame message.
func (w sender) SendString(text string, flags Flag) error {
	return w.s.Send(NewMessageString(text), flags&^SendMore)
}

type receiver struct{ s *Socket }

func (r receiver) Recv(flags Flag) (*Message, error)           { return r.s.Recv(flags) }
func (r receiver) RecvMultipart(flags Flag) (Multipart, error) { return r.s.RecvMultipart(flags) }

// RecvString receives a single frame message as text.
func (r receiver) RecvString(flags Flag) (string, error) {
	msg, err := r.s.Recv(flags)
	if err != nil {
		return "", err
	}
	return msg.Text()
}

// PairSocket talks to exactly one Pair peer in both directions.
type PairSocket struct {
	common
	sender
	receiver
}

// PubSocket publishes every message to all subscribers whose filters match.
type PubSocket struct {
	common
	sender
}

type SubSocket struct {
	common
	receiver
}

// Subscribe adds a prefix filter. The empty topic matches everything.
func (s *SubSocket) Subscribe(topic []byte) error { return s.common.s.Subscribe(topic) }

// Unsubscribe removes a prefix filter.
func (s *SubSocket) Unsubscribe(topic []byte) error { return s.common.s.Unsubscribe(topic) }

// Subscriptions returns the active filters.
func (s *SubSocket) Subscriptions() [][]byte { return s.common.s.Subscriptions() }

// ReqSocket alternates strictly between sending a request and receiving its
// reply.
type ReqSocket struct {
	common
	sender
	receiver
}

// Request sends frames as one message and waits for the reply.
func (s *ReqSocket) Request(frames ...[]byte) (Multipart, error) {
	if err := s.common.s.SendMessage(frames...); err != nil {
		return nil, err
	}
	return s.common.s.RecvMultipart(0)
}

// RepSocket alternates strictly between receiving a request and sending its
// reply.
type RepSocket struct {
	common
	sender
	receiver
}

// DealerSocket sends round-robin to its peers and receives fair-queued from
// them, with no request/reply alternation.
type DealerSocket struct {
	common
	sender
	receiver
}

// RouterSocket prefixes received messages with the sender's identity and
// routes outgoing messages by identity.
type RouterSocket struct {
	common
	sender
	receiver
}

// SendTo sends frames as one message to the peer named identity.
func (s *RouterSocket) SendTo(identity []byte, frames ...[]byte) error {
	mp := make(Multipart, 0, len(frames)+1)
	mp = append(mp, identity)
	return s.common.s.SendMultipart(append(mp, frames...), 0)
}

// PushSocket hands each message to one Pull peer in round-robin order.
type PushSocket struct {
	common
	sender
}

// PullSocket receives fair-queued from its Push peers.
type PullSocket struct {
	common
	receiver
}

// ServerSocket answers Client peers. Received messages carry the sender's
// routing id; replies are addressed with it.
type ServerSocket struct {
	common
	sender
	receiver
}

// SendTo sends data as one message to the Client with the given routing id.
func (s *ServerSocket) SendTo(routingID uint32, data []byte) error {
	msg := NewMessage(data)
	msg.SetRoutingID(routingID)
	return s.common.s.Send(msg, 0)
}

// ClientSocket sends single part messages round-robin to Server peers.
type ClientSocket struct {
	common
	sender
	receiver
}

// RadioSocket publishes single part messages to groups.
type RadioSocket struct {
	common
	sender
}

// Publish sends data to every Dish peer that joined group.
func (s *RadioSocket) Publish(group string, data []byte) error {
	msg := NewMessage(data)
	if err := msg.SetGroup(group); err != nil {
		return s.common.s.fail(err)
	}
	return s.common.s.Send(msg, 0)
}

// DishSocket receives what Radio peers publish to the groups it joined.
type DishSocket struct {
	common
	receiver
}

func (s *DishSocket) Join(group string) error  { return s.common.s.Join(group) }
func (s *DishSocket) Leave(group string) error { return s.common.s.Leave(group) }
func (s *DishSocket) Groups() []string         { return s.common.s.Groups() }

// NewPair creates a Pair socket.
func NewPair(c *Context, cfg *SocketConfig) (*PairSocket, error) {
	s, err := c.Socket(RolePair, cfg)
	if err != nil {
		return nil, err
	}
	return &PairSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewPub creates a Pub socket.
func NewPub(c *Context, cfg *SocketConfig) (*PubSocket, error) {
	s, err := c.Socket(RolePub, cfg)
	if err != nil {
		return nil, err
	}
	return &PubSocket{common{s}, sender{s}}, nil
}

// NewSub creates a Sub socket. Subscriptions in cfg apply before any connect.
func NewSub(c *Context, cfg *SocketConfig) (*SubSocket, error) {
	s, err := c.Socket(RoleSub, cfg)
	if err != nil {
		return nil, err
	}
	return &SubSocket{common{s}, receiver{s}}, nil
}

// NewReq creates a Req socket.
func NewReq(c *Context, cfg *SocketConfig) (*ReqSocket, error) {
	s, err := c.Socket(RoleReq, cfg)
	if err != nil {
		return nil, err
	}
	return &ReqSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewRep creates a Rep socket.
func NewRep(c *Context, cfg *SocketConfig) (*RepSocket, error) {
	s, err := c.Socket(RoleRep, cfg)
	if err != nil {
		return nil, err
	}
	return &RepSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewDealer creates a Dealer socket.
func NewDealer(c *Context, cfg *SocketConfig) (*DealerSocket, error) {
	s, err := c.Socket(RoleDealer, cfg)
	if err != nil {
		return nil, err
	}
	return &DealerSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewRouter creates a Router socket.
func NewRouter(c *Context, cfg *SocketConfig) (*RouterSocket, error) {
	s, err := c.Socket(RoleRouter, cfg)
	if err != nil {
		return nil, err
	}
	return &RouterSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewPush creates a Push socket.
func NewPush(c *Context, cfg *SocketConfig) (*PushSocket, error) {
	s, err := c.Socket(RolePush, cfg)
	if err != nil {
		return nil, err
	}
	return &PushSocket{common{s}, sender{s}}, nil
}

// NewPull creates a Pull socket.
func NewPull(c *Context, cfg *SocketConfig) (*PullSocket, error) {
	s, err := c.Socket(RolePull, cfg)
	if err != nil {
		return nil, err
	}
	return &PullSocket{common{s}, receiver{s}}, nil
}

// NewServer creates a Server socket. It needs the in-process engine.
func NewServer(c *Context, cfg *SocketConfig) (*ServerSocket, error) {
	s, err := c.Socket(RoleServer, cfg)
	if err != nil {
		return nil, err
	}
	return &ServerSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewClient creates a Client socket. It needs the in-process engine.
func NewClient(c *Context, cfg *SocketConfig) (*ClientSocket, error) {
	s, err := c.Socket(RoleClient, cfg)
	if err != nil {
		return nil, err
	}
	return &ClientSocket{common{s}, sender{s}, receiver{s}}, nil
}

// NewRadio creates a Radio socket. It needs the in-process engine.
func NewRadio(c *Context, cfg *SocketConfig) (*RadioSocket, error) {
	s, err := c.Socket(RoleRadio, cfg)
	if err != nil {
		return nil, err
	}
	return &RadioSocket{common{s}, sender{s}}, nil
}

// NewDish creates a Dish socket. It needs the in-process engine.
func NewDish(c *Context, cfg *SocketConfig) (*DishSocket, error) {
	s, err := c.Socket(RoleDish, cfg)
	if err != nil {
		return nil, err
	}
	return &DishSocket{common{s}, receiver{s}}, nil
}

// CloseAll closes every socket given and returns the first error.
func CloseAll(sockets ...Pollable) error {
	var first error
	for _, p := range sockets {
		if err := p.base().Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
