package zsock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/multifrost/zsock/engine"
)

// EventType is a connection lifecycle event reported by a Monitor.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventConnectDelayed
	EventConnectRetried
	EventListening
	EventBindFailed
	EventAccepted
	EventAcceptFailed
	EventClosed
	EventCloseFailed
	EventDisconnected
	EventHandshakeSucceeded
	EventHandshakeFailed
	EventMonitorStopped
)

var eventTypeNames = map[EventType]string{
	EventConnected:          "connected",
	EventConnectDelayed:     "connect delayed",
	EventConnectRetried:     "connect retried",
	EventListening:          "listening",
	EventBindFailed:         "bind failed",
	EventAccepted:           "accepted",
	EventAcceptFailed:       "accept failed",
	EventClosed:             "closed",
	EventCloseFailed:        "close failed",
	EventDisconnected:       "disconnected",
	EventHandshakeSucceeded: "handshake succeeded",
	EventHandshakeFailed:    "handshake failed",
	EventMonitorStopped:     "monitor stopped",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

var eventMasks = map[EventType]engine.EventMask{
	EventConnected:          engine.EventConnected,
	EventConnectDelayed:     engine.EventConnectDelayed,
	EventConnectRetried:     engine.EventConnectRetried,
	EventListening:          engine.EventListening,
	EventBindFailed:         engine.EventBindFailed,
	EventAccepted:           engine.EventAccepted,
	EventAcceptFailed:       engine.EventAcceptFailed,
	EventClosed:             engine.EventClosed,
	EventCloseFailed:        engine.EventCloseFailed,
	EventDisconnected:       engine.EventDisconnected,
	EventHandshakeSucceeded: engine.EventHandshakeSucceeded,
	EventHandshakeFailed: engine.EventHandshakeFailedNoDetail |
		engine.EventHandshakeFailedProtocol |
		engine.EventHandshakeFailedAuth,
	EventMonitorStopped: engine.EventMonitorStopped,
}

func eventTypeOf(code engine.EventMask) (EventType, bool) {
	for t, m := range eventMasks {
		if m&code != 0 {
			return t, true
		}
	}
	return 0, false
}

var protocolErrors = map[uint32]string{
	engine.ProtocolErrorUnspecified:       "unspecified protocol error",
	engine.ProtocolErrorUnexpectedCommand: "unexpected command",
	engine.ProtocolErrorInvalidSequence:   "invalid command sequence",
	engine.ProtocolErrorKeyExchange:       "key exchange failed",
	engine.ProtocolErrorCryptographic:     "cryptographic error",
	engine.ProtocolErrorMechanismMismatch: "security mechanism mismatch",
	engine.ProtocolErrorZAPUnspecified:    "unspecified ZAP error",
}

func handshakeReason(code engine.EventMask, value uint32) string {
	switch code {
	case engine.EventHandshakeFailedProtocol:
		if r, ok := protocolErrors[value]; ok {
			return r
		}
		return fmt.Sprintf("protocol error %#x", value)
	case engine.EventHandshakeFailedAuth:
		return fmt.Sprintf("authentication rejected with status %d", value)
	}
	return fmt.Sprintf("handshake failed (errno %d)", value)
}

// Event is one monitor notification. Err is set for EventHandshakeFailed and
// carries the reason as an *Error of kind KindHandshakeFailed.
type Event struct {
	Type     EventType
	Endpoint string
	Value    uint32
	Err      error
}

func (e Event) String() string {
	if e.Endpoint == "" {
		return e.Type.String()
	}
	return e.Type.String() + " " + e.Endpoint
}

// Monitor streams lifecycle events of one socket. Events arrive in order;
// after the monitored socket closes the stream ends with EventMonitorStopped
// and Next returns io.EOF. A Monitor cannot be restarted.
//
// Closing the monitored socket releases the side channel even if nobody reads
// the stream, so the context can still terminate. Events already delivered
// stay readable through Next.
type Monitor struct {
	target   *Socket
	endpoint string
	pair     *Socket
	poller   *Poller

	mu       sync.Mutex
	backlog  []Multipart
	finished bool
	detached bool
	closed   bool
}

// Monitor starts monitoring the given events, or all events when none are
// given. Only one Monitor may be active per socket.
func (s *Socket) Monitor(events ...EventType) (*Monitor, error) {
	var mask engine.EventMask
	for _, t := range events {
		m, ok := eventMasks[t]
		if !ok {
			return nil, s.fail(newError(KindConfigurationRejected, opMonitor, "unknown event "+t.String()))
		}
		mask |= m
	}
	if mask == 0 {
		mask = engine.EventAll
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(opMonitor); err != nil {
		return nil, s.fail(err)
	}
	if s.monitor != nil {
		return nil, s.fail(newError(KindInvalidState, opMonitor, "socket is already monitored"))
	}

	endpoint := "inproc://monitor." + uuid.New().String()
	if err := s.raw.Monitor(endpoint, mask); err != nil {
		return nil, s.fail(endpointError(opMonitor, endpoint, err))
	}
	pair, err := s.ctx.Socket(RolePair, NewSocketConfig().Linger(0))
	if err != nil {
		_ = s.raw.Monitor("", 0)
		return nil, err
	}
	if err := pair.Connect(endpoint); err != nil {
		_ = pair.Close()
		_ = s.raw.Monitor("", 0)
		return nil, err
	}
	poller := NewPoller(WithPollMetrics(s.ctx.metrics))
	if err := poller.Register(pair, Readable); err != nil {
		_ = pair.Close()
		_ = s.raw.Monitor("", 0)
		return nil, err
	}

	m := &Monitor{target: s, endpoint: endpoint, pair: pair, poller: poller}
	s.monitor = m
	s.log.Debug("monitor started", zap.String("endpoint", endpoint))
	return m, nil
}

// Endpoint returns the side channel the events travel on.
func (m *Monitor) Endpoint() string { return m.endpoint }

// Next returns the next event, waiting until one arrives or ctx is done.
func (m *Monitor) Next(ctx context.Context) (Event, error) {
	for {
		m.mu.Lock()
		switch {
		case m.finished:
			m.mu.Unlock()
			return Event{}, io.EOF
		case m.closed:
			m.mu.Unlock()
			return Event{}, newError(KindInvalidState, opMonitor, "monitor closed")
		case len(m.backlog) > 0:
			frames := m.backlog[0]
			m.backlog = m.backlog[1:]
			m.mu.Unlock()
			return m.decode(frames)
		case m.detached:
			m.mu.Unlock()
			return Event{}, io.EOF
		}
		frames, err := m.pair.RecvMultipart(DontWait)
		m.mu.Unlock()

		if err == nil {
			return m.decode(frames)
		}
		if !errors.Is(err, ErrWouldBlock) && !m.released(err) {
			return Event{}, err
		}
		if _, err := m.poller.WaitContext(ctx, Infinite); err != nil && !m.released(err) {
			return Event{}, err
		}
	}
}

// released reports whether err came from the side channel being torn down by
// the monitor itself, in which case Next re-checks its state.
func (m *Monitor) released(err error) bool {
	if !errors.Is(err, ErrSocketClosed) && !errors.Is(err, ErrInvalidState) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished || m.detached || m.closed
}

func (m *Monitor) decode(frames Multipart) (Event, error) {
	code, value, endpoint, err := engine.DecodeEvent(frames)
	if err != nil {
		return Event{}, &Error{Kind: KindInvalidState, Op: opMonitor, Err: err}
	}
	t, ok := eventTypeOf(code)
	if !ok {
		return Event{}, newError(KindInvalidState, opMonitor, fmt.Sprintf("unknown event code %#x", uint32(code)))
	}
	ev := Event{Type: t, Endpoint: endpoint, Value: value}
	switch t {
	case EventHandshakeFailed:
		ev.Err = &Error{Kind: KindHandshakeFailed, Op: opMonitor, Endpoint: endpoint, Reason: handshakeReason(code, value)}
	case EventMonitorStopped:
		m.finish()
	}
	return ev, nil
}

// finish releases the side channel once the stream has ended.
func (m *Monitor) finish() {
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
	m.release()
}

// detach runs once the monitored socket has closed. Whatever the socket left
// on the side channel is kept in the backlog before the channel is released.
func (m *Monitor) detach() {
	m.mu.Lock()
	if m.closed || m.finished || m.detached {
		m.mu.Unlock()
		return
	}
	for {
		frames, err := m.pair.RecvMultipart(DontWait)
		if err != nil {
			break
		}
		m.backlog = append(m.backlog, frames)
	}
	m.detached = true
	m.mu.Unlock()
	m.release()
}

func (m *Monitor) release() {
	_ = m.poller.Close()
	_ = m.pair.Close()

	m.target.mu.Lock()
	if m.target.monitor == m {
		m.target.monitor = nil
	}
	m.target.mu.Unlock()
}

// Close stops monitoring. Closing an ended or closed Monitor is a no-op.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed || m.finished || m.detached {
		m.closed = true
		m.backlog = nil
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var err error
	if !m.target.IsClosed() {
		if e := m.target.raw.Monitor("", 0); e != nil && engine.ErrnoOf(e) != engine.ENOTSOCK {
			err = wrapEngine(opMonitor, 0, e)
		}
	}
	m.release()
	return err
}
