// Package engine defines the narrow surface through which zsock drives a
// transport engine. Wire framing, socket I/O and connection management live
// behind these interfaces; everything above them is engine independent.
//
// Two engines ship with the module:
//   - zmq4engine: ZMTP sockets backed by github.com/go-zeromq/zmq4
//   - memengine: an in-process fabric with inproc semantics for every transport
package engine

import "time"

// SocketType is the protocol role of a native socket. Values follow libzmq.
type SocketType int

const (
	Pair SocketType = iota
	Pub
	Sub
	Req
	Rep
	Dealer
	Router
	Pull
	Push
)

// Draft socket types. Their messages are single part; the routing id or group
// travels through the engine as an extra leading frame.
const (
	Server SocketType = iota + 12
	Client
	Radio
	Dish
)

var socketTypeNames = map[SocketType]string{
	Pair:   "PAIR",
	Pub:    "PUB",
	Sub:    "SUB",
	Req:    "REQ",
	Rep:    "REP",
	Dealer: "DEALER",
	Router: "ROUTER",
	Pull:   "PULL",
	Push:   "PUSH",
	Server: "SERVER",
	Client: "CLIENT",
	Radio:  "RADIO",
	Dish:   "DISH",
}

func (t SocketType) String() string {
	if name, ok := socketTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether t is a known socket type.
func (t SocketType) Valid() bool {
	_, ok := socketTypeNames[t]
	return ok
}

// Draft reports whether t is one of the single part draft types.
func (t SocketType) Draft() bool { return t >= Server && t <= Dish }

// CanSend reports whether the type has an outbound direction.
func (t SocketType) CanSend() bool {
	switch t {
	case Sub, Pull, Dish:
		return false
	}
	return true
}

// CanRecv reports whether the type has an inbound direction.
func (t SocketType) CanRecv() bool {
	switch t {
	case Pub, Push, Radio:
		return false
	}
	return true
}

// Compatible reports whether a and b may be peers.
func Compatible(a, b SocketType) bool {
	switch a {
	case Pair:
		return b == Pair
	case Pub:
		return b == Sub
	case Sub:
		return b == Pub
	case Req:
		return b == Rep || b == Router
	case Rep:
		return b == Req || b == Dealer
	case Dealer:
		return b == Rep || b == Dealer || b == Router
	case Router:
		return b == Req || b == Dealer || b == Router
	case Pull:
		return b == Push
	case Push:
		return b == Pull
	case Server:
		return b == Client
	case Client:
		return b == Server
	case Radio:
		return b == Dish
	case Dish:
		return b == Radio
	}
	return false
}

// Flag modifies a send or receive call.
type Flag int

const (
	DontWait Flag = 1 << iota
	SendMore
)

// Readiness is the ZMQ_EVENTS bit set of a socket.
type Readiness uint8

const (
	PollIn Readiness = 1 << iota
	PollOut
)

// Infinite is the duration value meaning "no deadline" for timeouts and linger.
const Infinite time.Duration = -1

// ContextOptions configures a native context.
type ContextOptions struct {
	IOThreads  int
	MaxSockets int
}

// Engine creates native contexts.
type Engine interface {
	Name() string
	NewContext(opts ContextOptions) (Context, error)
}

// Context owns native I/O resources and creates sockets.
type Context interface {
	// NewSocket fails with EMFILE past the max-sockets limit and ETERM after
	// Shutdown.
	NewSocket(t SocketType) (Socket, error)

	// Shutdown makes every blocking call on the context's sockets return
	// ETERM. It is idempotent.
	Shutdown()

	// Term shuts the context down and releases it. Sockets still open are
	// closed with zero linger.
	Term() error
}

// Socket is a native socket handle. Implementations need not be safe for
// concurrent use, except that Close may be called while another goroutine is
// blocked in Send or Recv; the blocked call then fails with ENOTSOCK.
type Socket interface {
	Type() SocketType

	Bind(endpoint string) error
	Connect(endpoint string) error
	Unbind(endpoint string) error
	Disconnect(endpoint string) error

	// LastEndpoint is the resolved address of the most recent bind.
	LastEndpoint() string

	// Send queues one frame. A message is complete when a frame is sent
	// without SendMore.
	Send(frame []byte, flags Flag) error

	// Recv returns one frame and whether more frames of the same message
	// follow.
	Recv(flags Flag) (frame []byte, more bool, err error)

	SetOption(name string, value any) error
	GetOption(name string) (any, error)

	// OptionSpec reports the engine's metadata for an option.
	OptionSpec(name string) (OptionSpec, bool)

	// Events reports current readiness. It may fail with EINTR when the wait
	// was interrupted, and with ENOTSOCK once the socket is closed.
	Events() (Readiness, error)

	// Watch registers ch to receive a non-blocking send whenever readiness may
	// have changed, including on close and context shutdown.
	Watch(ch chan<- struct{})
	Unwatch(ch chan<- struct{})

	// Monitor publishes the events in mask on a PAIR socket bound to
	// endpoint. An empty endpoint stops monitoring.
	Monitor(endpoint string, mask EventMask) error

	Close() error
}
