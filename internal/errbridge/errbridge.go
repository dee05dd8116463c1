// Package errbridge implements the error/exception hub of §4.9: a small
// ordered chain of handlers that low-level errors and uncaught payload
// faults are routed through before falling back to the logger.
package errbridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nodewatch/daemonctl/internal/procdump"
)

// Handler receives one error event and returns true to stop the chain.
type Handler func(code int, msg, file string, line int, ctx any) (stop bool)

// ErrMask selects which error codes a handler cares about; ALL matches
// everything.
type ErrMask int

const MaskAll ErrMask = -1

// HandlerToken identifies one registered handler for later removal. Go func
// values aren't comparable, so AddHandler hands back this token instead of
// requiring callers to identify their handler by value.
type HandlerToken int

type entry struct {
	token HandlerToken
	fn    Handler
	mask  ErrMask
}

// Bridge is the ErrorBridge of §4.9.
type Bridge struct {
	log  *zap.Logger
	mu   sync.Mutex
	next HandlerToken
	// threshold is the ambient minimum severity below which errors are
	// dropped before reaching any handler (§4.9 "below the ambient
	// error-reporting threshold are dropped").
	threshold int
	handlers  []entry
}

func New(log *zap.Logger, threshold int) *Bridge {
	return &Bridge{log: log.Named("errbridge"), threshold: threshold}
}

// AddHandler registers fn for codes matching mask, in registration order,
// and returns a token RemoveHandler can later use to drop it.
func (b *Bridge) AddHandler(fn Handler, mask ErrMask) HandlerToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	tok := b.next
	b.handlers = append(b.handlers, entry{token: tok, fn: fn, mask: mask})
	return tok
}

// RemoveHandler drops the handler registered under token, if still present.
// Safe to call from a goroutine other than the one driving OnError/OnException
// (e.g. the control plane revoking a handler mid-run).
func (b *Bridge) RemoveHandler(token HandlerToken) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.handlers {
		if e.token == token {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// OnError routes a low-level error through every handler whose mask
// intersects code, in order, stopping early if a handler returns stop=true.
func (b *Bridge) OnError(code int, msg, file string, line int, ctx any) {
	if code < b.threshold {
		return
	}
	b.log.Warn("error event", zap.Int("code", code), zap.String("msg", msg), zap.String("file", file), zap.Int("line", line))
	if cerr, ok := ctx.(error); ok {
		procdump.Chain(b.log, cerr)
	}

	b.mu.Lock()
	handlers := append([]entry(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		if h.mask != MaskAll && int(h.mask) != code {
			continue
		}
		if h.fn(code, msg, file, line, ctx) {
			return
		}
	}
}

// OnException routes an uncaught payload fault through the same chain
// OnError uses, tagging it with code 0 (no low-level error number applies).
func (b *Bridge) OnException(msg string, ctx any) {
	b.OnError(0, msg, "", 0, ctx)
}
