package zsock

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/multifrost/zsock/engine"
)

// Interest is the readiness a Poller waits for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Ready reports a socket whose interest was satisfied.
type Ready struct {
	Socket *Socket
	Events Interest
}

type pollItem struct {
	s        *Socket
	interest Interest
	last     Interest
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithoutInterruptRetry makes Wait return ErrInterrupted instead of retrying
// when the readiness scan is interrupted.
func WithoutInterruptRetry() PollerOption {
	return func(p *Poller) { p.retry = false }
}

// WithClock sets the clock used for Wait timeouts.
func WithClock(c clock.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithPollMetrics records Wait durations to m.
func WithPollMetrics(m *Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// Poller waits for readiness across a set of sockets. It must be used by one
// goroutine at a time, like a socket; closing a registered socket from
// elsewhere ends a pending Wait with ErrSocketClosed.
type Poller struct {
	clock   clock.Clock
	retry   bool
	metrics *Metrics

	mu      sync.Mutex
	items   []pollItem
	index   map[*Socket]int
	evicted uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewPoller creates an empty poller.
func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{
		clock: clock.New(),
		retry: true,
		index: make(map[*Socket]int),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds s with the given interest, replacing any earlier
// registration of the same socket.
func (p *Poller) Register(s Pollable, interest Interest) error {
	sock := s.base()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return newError(KindInvalidState, opPoll, "poller closed")
	}
	if interest == 0 || interest&^(Readable|Writable) != 0 {
		return newError(KindInvalidState, opPoll, "interest must be Readable, Writable or both")
	}
	if i, ok := p.index[sock]; ok {
		p.items[i].interest = interest
		p.items[i].last = 0
		return nil
	}
	if !sock.addPoller(p) {
		return &Error{Kind: KindSocketClosed, Op: opPoll}
	}
	sock.raw.Watch(p.wake)
	p.index[sock] = len(p.items)
	p.items = append(p.items, pollItem{s: sock, interest: interest})
	return nil
}

// Deregister removes s. Removing a socket that is not registered is a no-op.
func (p *Poller) Deregister(s Pollable) error {
	sock := s.base()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return newError(KindInvalidState, opPoll, "poller closed")
	}
	if p.remove(sock) {
		sock.removePoller(p)
	}
	return nil
}

// remove drops sock from the item slice. The caller holds p.mu.
func (p *Poller) remove(sock *Socket) bool {
	i, ok := p.index[sock]
	if !ok {
		return false
	}
	last := len(p.items) - 1
	if i != last {
		p.items[i] = p.items[last]
		p.index[p.items[i].s] = i
	}
	p.items = p.items[:last]
	delete(p.index, sock)
	sock.raw.Unwatch(p.wake)
	return true
}

// evict is called by a closing socket.
func (p *Poller) evict(sock *Socket) {
	p.mu.Lock()
	if p.remove(sock) {
		p.evicted++
	}
	p.mu.Unlock()
	p.poke()
}

func (p *Poller) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of registered sockets.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Wait blocks until at least one registered socket satisfies its interest or
// timeout elapses, and returns the ready sockets in no particular order. A
// timeout of 0 only checks, Infinite never expires. An expired timeout is not
// an error: the result is empty.
//
// Wait fails with ErrSocketClosed when a registered socket is closed while it
// waits, with ErrInvalidState when the poller is closed, and with
// ErrInterrupted only if WithoutInterruptRetry was given.
func (p *Poller) Wait(timeout time.Duration) ([]Ready, error) {
	return p.WaitContext(context.Background(), timeout)
}

// WaitContext is Wait that also returns ctx.Err() once ctx is done.
func (p *Poller) WaitContext(ctx context.Context, timeout time.Duration) ([]Ready, error) {
	if timeout < 0 && timeout != Infinite {
		return nil, newError(KindInvalidState, opPoll, "negative timeout")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newError(KindInvalidState, opPoll, "poller closed")
	}
	evicted := p.evicted
	p.mu.Unlock()

	start := p.clock.Now()
	defer func() { p.metrics.polled(p.clock.Since(start)) }()

	var expired <-chan time.Time
	if timeout > 0 {
		t := p.clock.Timer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-p.wake:
		default:
		}

		ready, err := p.scan(evicted)
		if err != nil {
			if KindOf(err) == KindInterrupted && p.retry {
				if p.expired(expired) {
					return nil, nil
				}
				continue
			}
			p.metrics.failed(err)
			return nil, err
		}
		if len(ready) > 0 || timeout == 0 {
			return ready, nil
		}

		select {
		case <-p.wake:
		case <-expired:
			return nil, nil
		case <-p.done:
			return nil, newError(KindInvalidState, opPoll, "poller closed")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Poller) expired(ch <-chan time.Time) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// scan checks every registered socket once.
func (p *Poller) scan(evicted uint64) ([]Ready, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newError(KindInvalidState, opPoll, "poller closed")
	}
	if p.evicted != evicted {
		p.mu.Unlock()
		return nil, &Error{Kind: KindSocketClosed, Op: opPoll, Reason: "a registered socket was closed"}
	}
	items := make([]pollItem, len(p.items))
	copy(items, p.items)
	p.mu.Unlock()

	var ready []Ready
	for i := range items {
		it := &items[i]
		r, err := it.s.raw.Events()
		if err != nil {
			return nil, p.eventsError(it.s, err)
		}
		got := Interest(r) & it.interest
		p.record(it.s, got)
		if got != 0 {
			ready = append(ready, Ready{Socket: it.s, Events: got})
		}
	}
	return ready, nil
}

func (p *Poller) eventsError(s *Socket, err error) error {
	if s.IsClosed() || engine.ErrnoOf(err) == engine.ENOTSOCK {
		return &Error{Kind: KindSocketClosed, Op: opPoll, Err: err}
	}
	return wrapEngine(opPoll, 0, err)
}

func (p *Poller) record(s *Socket, got Interest) {
	p.mu.Lock()
	if i, ok := p.index[s]; ok {
		p.items[i].last = got
	}
	p.mu.Unlock()
}

// Last returns the readiness observed for s by the latest Wait.
func (p *Poller) Last(s Pollable) Interest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.index[s.base()]; ok {
		return p.items[i].last
	}
	return 0
}

// Close deregisters every socket and ends a pending Wait. Later calls fail
// with ErrInvalidState. Closing twice is a no-op.
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	items := p.items
	p.items = nil
	p.index = make(map[*Socket]int)
	close(p.done)
	p.mu.Unlock()

	for _, it := range items {
		it.s.raw.Unwatch(p.wake)
		it.s.removePoller(p)
	}
	return nil
}
