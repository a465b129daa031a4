package zmq4engine

import (
	"sync"

	"github.com/multifrost/zsock/engine"
)

const eventBacklog = 1000

// eventPipe carries encoded monitor events from a monitored socket to the PAIR
// socket that connected to the monitor endpoint. Events that find the pipe full
// are dropped.
type eventPipe struct {
	endpoint string
	mask     engine.EventMask
	ch       chan [][]byte

	mu     sync.Mutex
	reader *socket
}

func newEventPipe(endpoint string, mask engine.EventMask) *eventPipe {
	return &eventPipe{
		endpoint: endpoint,
		mask:     mask,
		ch:       make(chan [][]byte, eventBacklog),
	}
}

func (p *eventPipe) publish(code engine.EventMask, value uint32, endpoint string) {
	if p.mask&code == 0 && code != engine.EventMonitorStopped {
		return
	}
	select {
	case p.ch <- engine.EncodeEvent(code, value, endpoint):
	default:
	}

	p.mu.Lock()
	r := p.reader
	p.mu.Unlock()
	if r != nil {
		r.sig.Notify()
	}
}

func (p *eventPipe) attach(r *socket) {
	p.mu.Lock()
	p.reader = r
	p.mu.Unlock()
}

// openMonitor registers a monitor endpoint in the context namespace.
func (c *Context) openMonitor(endpoint string, mask engine.EventMask) (*eventPipe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.monitors[endpoint]; taken {
		return nil, engine.Errorf(engine.EADDRINUSE, "%s", endpoint)
	}
	p := newEventPipe(endpoint, mask)
	c.monitors[endpoint] = p
	return p, nil
}

func (c *Context) closeMonitor(p *eventPipe) {
	c.mu.Lock()
	if c.monitors[p.endpoint] == p {
		delete(c.monitors, p.endpoint)
	}
	c.mu.Unlock()
}

func (c *Context) lookupMonitor(endpoint string) *eventPipe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitors[endpoint]
}
