// Package logtail adapts the teacher's processmgr.logBuffer/LogManager
// (circular in-memory log buffer, O(1) append, newest→oldest read) into a
// zapcore.WriteSyncer the daemon realm's logger tees into, so the optional
// HTTP control plane can expose recent log lines (GET /logs) without
// reading back a file or persisting anything — purely ephemeral
// troubleshooting state, lost on restart.
package logtail

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

const capacity = 500

// Buffer is a thread-safe circular buffer of log lines.
type Buffer struct {
	entries [capacity]string
	head    int
	size    int
	full    bool
	mu      sync.RWMutex
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Write implements zapcore.WriteSyncer so a Buffer can be used directly as
// a zap output target via zapcore.NewMultiWriteSyncer.
func (b *Buffer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line != "" {
		b.Append(line)
	}
	return len(p), nil
}

// Sync is a no-op; the buffer has nothing to flush.
func (b *Buffer) Sync() error { return nil }

// Append adds one log line, overwriting the oldest entry once full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = line
	b.head = (b.head + 1) % capacity

	if b.full {
		return
	}
	b.size++
	if b.size == capacity {
		b.full = true
	}
}

// Read returns up to n lines, newest first; n<=0 or n>capacity is clamped
// to the full buffer.
func (b *Buffer) Read(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > capacity {
		n = capacity
	}
	if n > b.size {
		n = b.size
	}

	var newest int
	if b.full {
		newest = (b.head - 1 + capacity) % capacity
	} else {
		newest = b.size - 1
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(newest-i+capacity)%capacity]
	}
	return out
}

var _ zapcore.WriteSyncer = (*Buffer)(nil)
