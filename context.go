package zsock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/multifrost/zsock/engine"
	"github.com/multifrost/zsock/engine/zmq4engine"
)

// ContextConfig holds configuration for NewContext. Zero values take the
// defaults.
type ContextConfig struct {
	IOThreads  int // default 1
	MaxSockets int // default 1023
	Engine     engine.Engine
	Logger     *zap.Logger
	Metrics    *Metrics
}

const (
	DefaultIOThreads  = 1
	DefaultMaxSockets = 1023
)

// Context owns the engine resources sockets are built from. It is safe for
// concurrent use and must outlive its sockets; Term waits for them.
type Context struct {
	id         string
	raw        engine.Context
	engineName string
	ioThreads  int
	maxSockets int
	log        *zap.Logger
	metrics    *Metrics

	mu         sync.Mutex
	sockets    map[*Socket]struct{}
	terminated bool
	released   *engine.Signal
}

// NewContext creates a context.
func NewContext(cfg ContextConfig) (*Context, error) {
	if cfg.IOThreads < 0 {
		return nil, &Error{Kind: KindConfigurationRejected, Op: opContext, Option: "io_threads", Reason: "must not be negative"}
	}
	if cfg.MaxSockets < 0 {
		return nil, &Error{Kind: KindConfigurationRejected, Op: opContext, Option: "max_sockets", Reason: "must not be negative"}
	}
	if cfg.IOThreads == 0 {
		cfg.IOThreads = DefaultIOThreads
	}
	if cfg.MaxSockets == 0 {
		cfg.MaxSockets = DefaultMaxSockets
	}
	if cfg.Engine == nil {
		cfg.Engine = zmq4engine.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	raw, err := cfg.Engine.NewContext(engine.ContextOptions{
		IOThreads:  cfg.IOThreads,
		MaxSockets: cfg.MaxSockets,
	})
	if err != nil {
		return nil, wrapEngine(opContext, 0, err)
	}

	id := uuid.New().String()
	c := &Context{
		id:         id,
		raw:        raw,
		engineName: cfg.Engine.Name(),
		ioThreads:  cfg.IOThreads,
		maxSockets: cfg.MaxSockets,
		log:        cfg.Logger.With(zap.String("context", id), zap.String("engine", cfg.Engine.Name())),
		metrics:    cfg.Metrics,
		sockets:    make(map[*Socket]struct{}),
		released:   engine.NewSignal(),
	}
	c.log.Debug("context created",
		zap.Int("io_threads", c.ioThreads),
		zap.Int("max_sockets", c.maxSockets))
	return c, nil
}

// ID returns the context's unique id.
func (c *Context) ID() string { return c.id }

// Engine returns the name of the engine behind the context.
func (c *Context) Engine() string { return c.engineName }

// IOThreads returns the configured number of I/O threads.
func (c *Context) IOThreads() int { return c.ioThreads }

// MaxSockets returns the most sockets the context lets be open at once.
func (c *Context) MaxSockets() int { return c.maxSockets }

// OpenSockets returns the number of sockets not yet closed.
func (c *Context) OpenSockets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sockets)
}

// IsTerminated reports whether Shutdown has been called.
func (c *Context) IsTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Socket creates a socket of the given role.
func (c *Context) Socket(role Role, cfg *SocketConfig) (*Socket, error) {
	s, err := newSocket(c, role, cfg)
	if err != nil {
		c.metrics.failed(err)
		return nil, err
	}
	return s, nil
}

func (c *Context) adopt(s *Socket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return &Error{Kind: KindContextTerminated, Op: opSocket}
	}
	c.sockets[s] = struct{}{}
	c.metrics.opened()
	return nil
}

func (c *Context) release(s *Socket) {
	c.mu.Lock()
	if _, ok := c.sockets[s]; ok {
		delete(c.sockets, s)
		c.metrics.closed()
	}
	c.mu.Unlock()
	c.released.Notify()
}

// Shutdown stops the context: blocked calls on its sockets return
// ErrContextTerminated and so does every later operation except Close. It is
// idempotent and does not wait.
func (c *Context) Shutdown() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	open := len(c.sockets)
	c.mu.Unlock()

	c.raw.Shutdown()
	c.log.Debug("context shut down", zap.Int("open_sockets", open))
}

// Term shuts the context down and waits for every socket to be closed. When
// ctx ends first, the remaining sockets are closed concurrently and their
// errors returned together.
func (c *Context) Term(ctx context.Context) error {
	c.Shutdown()

	for {
		c.mu.Lock()
		ch := c.released.C()
		n := len(c.sockets)
		c.mu.Unlock()
		if n == 0 {
			return c.termRaw(nil)
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return c.termRaw(c.forceClose())
		}
	}
}

func (c *Context) forceClose() error {
	c.mu.Lock()
	remaining := make([]*Socket, 0, len(c.sockets))
	for s := range c.sockets {
		remaining = append(remaining, s)
	}
	c.mu.Unlock()

	c.log.Warn("forcing sockets closed", zap.Int("count", len(remaining)))

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, s := range remaining {
		s := s
		g.Go(func() error {
			if err := s.closeWithLinger(0); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (c *Context) termRaw(errs error) error {
	if err := c.raw.Term(); err != nil {
		errs = multierr.Append(errs, wrapEngine(opContext, 0, err))
	}
	return errs
}
