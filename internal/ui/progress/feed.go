package progress

import (
	"sync"

	"github.com/agent462/drove/internal/executor"
)

// Feed turns executor observer callbacks into a channel the progress view
// can consume. Observe never blocks once the view has stopped reading.
type Feed struct {
	mu     sync.Mutex
	ch     chan executor.Event
	stop   chan struct{}
	once   sync.Once
	closed bool
}

// NewFeed creates a Feed with the given channel buffer.
func NewFeed(buffer int) *Feed {
	return &Feed{
		ch:   make(chan executor.Event, buffer),
		stop: make(chan struct{}),
	}
}

// Observe is an executor.Observer.
func (f *Feed) Observe(ev executor.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ev:
	case <-f.stop:
	}
}

// Events returns the channel Observe delivers to. It is closed by Close.
func (f *Feed) Events() <-chan executor.Event {
	return f.ch
}

// Close ends the stream after the run has finished.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// Stop releases blocked observers when nobody reads the channel anymore.
func (f *Feed) Stop() {
	f.once.Do(func() { close(f.stop) })
}
