// Package signalrouter installs handlers for the signals the daemon realm
// reacts to (HUP/INT/TERM/CHLD/USR1/USR2, §4.6) and exposes them as a
// bounded inbox the supervisor loop drains at its own tick boundary,
// rather than doing any work inside the signal handler itself. The
// trap-then-drain shape is grounded on the retrieved pack's cs3org/reva
// grace.Watcher.TrapSignals, adapted from its fork-on-HUP graceful-restart
// use case to this core's explicit-state-variable supervisor loop (§9
// design note: signals are data, not control flow).
package signalrouter

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Router is the SignalInbox of §4.6/§5: a single-reader, bounded buffer of
// observed-but-undispatched signals.
type Router struct {
	log *zap.Logger
	ch  chan os.Signal
}

// trapped is the fixed signal set the daemon realm installs handlers for.
var trapped = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCHLD, syscall.SIGUSR1, syscall.SIGUSR2}

// New installs the trap set and returns a Router ready to be drained.
// Delivery is asynchronous; only enqueueing happens here — no payload
// dispatch, no locking, no allocation beyond the channel send itself.
func New(log *zap.Logger) *Router {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, trapped...)
	return &Router{log: log.Named("signalrouter"), ch: ch}
}

// Drain returns every signal observed since the last Drain, without
// blocking. This is the supervisor loop's "signal drain" phase (§4.5).
func (r *Router) Drain() []os.Signal {
	var out []os.Signal
	for {
		select {
		case s := <-r.ch:
			out = append(out, s)
		default:
			return out
		}
	}
}

// Reset restores default dispositions for the trapped set, as the
// supervisor loop does on termination (§4.5 "On exit, restore default
// dispositions").
func (r *Router) Reset() {
	signal.Reset(trapped...)
}

// ResetForWorker drops all handlers installed by New in a freshly forked
// worker, returning every trapped signal to its default disposition
// (§4.5 admission phase: "In the child: reset signal handlers to
// defaults").
func ResetForWorker() {
	signal.Reset(trapped...)
}

// String names a signal the way the dispatcher and logs refer to it.
func String(s os.Signal) string {
	switch s {
	case syscall.SIGHUP:
		return "HUP"
	case syscall.SIGINT:
		return "INT"
	case syscall.SIGTERM:
		return "TERM"
	case syscall.SIGCHLD:
		return "CHLD"
	case syscall.SIGUSR1:
		return "USR1"
	case syscall.SIGUSR2:
		return "USR2"
	default:
		return s.String()
	}
}
