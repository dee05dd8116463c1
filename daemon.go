// Package daemonctl is a UNIX daemon supervisor: it takes a user-supplied
// application payload and runs it as a long-lived background process,
// optionally as a fleet of homogeneous worker processes. It owns process
// lifecycle (console → daemon → worker), the single-instance PID lock,
// lifecycle command dispatch (start/stop/restart/status), the fleet
// supervisor loop, and signal handling. It does not parse flags, choose a
// logging backend for the caller, wire dependency injection, or load
// configuration files — those are the embedding application's concern.
package daemonctl

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nodewatch/daemonctl/internal/errbridge"
	"github.com/nodewatch/daemonctl/internal/forker"
	"github.com/nodewatch/daemonctl/internal/lock"
	"github.com/nodewatch/daemonctl/internal/signalrouter"
)

// PayloadFactory constructs the payload's capability struct. It is the
// registration API §9 substitutes for class-name-based construction: the
// embedding application supplies this function once, instead of the
// supervisor resolving "ucfirst(appname)" reflectively.
type PayloadFactory func(opts *Options) *Hooks

// Daemon is the supervisor's public entry point.
type Daemon struct {
	opts    *Options
	factory PayloadFactory
	log     *zap.Logger

	lock   *lock.Lock
	forker *forker.Forker
	router *signalrouter.Router
	bridge *errbridge.Bridge

	realm Realm
}

// New constructs a Daemon. log is the caller's own leveled sink (ambient
// logging is out of core scope per §1; this core only consumes it).
// Options.LogLevel, when set, raises that sink's effective threshold — it
// can silence levels the caller's core would otherwise emit, but it never
// lowers below whatever the caller already configured.
func New(factory PayloadFactory, opts *Options, log *zap.Logger) *Daemon {
	if log == nil {
		log = zap.NewNop()
	}
	if opts != nil && opts.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(opts.LogLevel); err != nil {
			log.Warn("invalid loglevel option, ignoring", zap.String("loglevel", opts.LogLevel), zap.Error(err))
		} else {
			log = log.WithOptions(zap.IncreaseLevel(lvl))
		}
	}
	return &Daemon{
		opts:    opts,
		factory: factory,
		log:     log.Named("daemonctl"),
		forker:  forker.New(log),
		bridge:  errbridge.New(log, 0),
		realm:   RealmConsole,
	}
}

// Realm reports the realm this process is currently playing.
func (d *Daemon) Realm() Realm { return d.realm }

// Attach is the single entry point an embedding main() calls. It realizes
// the realm state machine of §2: a freshly re-exec'd worker process never
// reaches command dispatch at all (it reads its handoff payload and runs
// the payload directly); a freshly re-exec'd daemon process skips straight
// to the post-fork continuation of §4.4 step 5; anything else goes through
// ordinary command dispatch (§4.3).
func (d *Daemon) Attach(args []string) int {
	if forker.WasForked() {
		return d.runWorkerProcess()
	}

	if err := d.opts.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	d.lock = lock.New(d.log, d.opts.DefaultPIDFile())

	if forker.WasDaemonized() {
		d.realm = RealmDaemon
		if !d.lock.Acquire(os.Getpid()) {
			d.log.Error("daemon re-exec failed to re-acquire pid lock")
			return 1
		}
		return d.continueStart(nil)
	}

	return d.dispatch(args)
}
