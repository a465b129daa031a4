package engine

import "sync"

// Signal broadcasts "something changed" to goroutines blocked on a socket and
// to poller wake channels registered with Watch.
type Signal struct {
	mu       sync.Mutex
	ch       chan struct{}
	watchers map[chan<- struct{}]struct{}
}

// NewSignal returns a ready Signal.
func NewSignal() *Signal {
	return &Signal{
		ch:       make(chan struct{}),
		watchers: make(map[chan<- struct{}]struct{}),
	}
}

// C returns a channel closed by the next Notify. Grab it before re-checking
// the condition being waited for, or a notification may be missed.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Notify wakes every waiter and pokes every watcher without blocking.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	for w := range s.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Watch registers ch for notifications.
func (s *Signal) Watch(ch chan<- struct{}) {
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
}

// Unwatch removes ch.
func (s *Signal) Unwatch(ch chan<- struct{}) {
	s.mu.Lock()
	delete(s.watchers, ch)
	s.mu.Unlock()
}
