package connection

import (
	"sync"

	"github.com/rickgao/marketsync/internal/model"
)

// TickBuffer is a fixed-capacity ring of the most recent trade ticks.
// Once full, each push evicts the tick that arrived earliest, regardless of
// the exchange timestamps. Safe for one writer and many readers.
type TickBuffer struct {
	mu    sync.RWMutex
	buf   []model.TradeTick
	next  int // write position
	count int
	total int64
}

// NewTickBuffer creates a buffer holding up to capacity ticks.
func NewTickBuffer(capacity int) *TickBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TickBuffer{buf: make([]model.TradeTick, capacity)}
}

// Push adds a tick, evicting the oldest arrival when full.
func (b *TickBuffer) Push(t model.TradeTick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.next] = t
	b.next = (b.next + 1) % len(b.buf)
	if b.count < len(b.buf) {
		b.count++
	}
	b.total++
}

// Snapshot returns a copy of the buffered ticks, most recent arrival first.
func (b *TickBuffer) Snapshot() []model.TradeTick {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.TradeTick, 0, b.count)
	for i := 1; i <= b.count; i++ {
		idx := (b.next - i + len(b.buf)) % len(b.buf)
		out = append(out, b.buf[idx])
	}
	return out
}

// Len returns the number of buffered ticks.
func (b *TickBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *TickBuffer) Cap() int {
	return len(b.buf)
}

// Total returns how many ticks were ever pushed.
func (b *TickBuffer) Total() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}
