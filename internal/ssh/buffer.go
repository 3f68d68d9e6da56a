package ssh

import (
	"fmt"
	"sync"
)

// maxCapture bounds how much of each output stream is kept per command.
const maxCapture = 16 << 20

// captureBuffer collects one output stream. Writes past limit are counted
// and discarded so the remote side is never blocked, and reads may happen
// while a drain goroutine is still writing.
type captureBuffer struct {
	mu      sync.Mutex
	data    []byte
	limit   int
	dropped int64
}

func newCaptureBuffer(limit int) *captureBuffer {
	return &captureBuffer{limit: limit}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - len(b.data)
	switch {
	case room <= 0:
		b.dropped += int64(len(p))
	case len(p) > room:
		b.data = append(b.data, p[:room]...)
		b.dropped += int64(len(p) - room)
	default:
		b.data = append(b.data, p...)
	}
	return len(p), nil
}

// Bytes returns a copy of what was kept, followed by a truncation note when
// the limit was hit. Nil when nothing was written.
func (b *captureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data), len(b.data)+64)
	copy(out, b.data)
	if b.dropped > 0 {
		out = fmt.Appendf(out, "\n[output truncated, %d bytes dropped]\n", b.dropped)
	}
	return out
}
