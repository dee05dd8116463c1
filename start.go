package daemonctl

import (
	"fmt"
	"os"
	"os/user"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nodewatch/daemonctl/internal/controlapi/logtail"
	"github.com/nodewatch/daemonctl/internal/forker"
	"github.com/nodewatch/daemonctl/internal/signalrouter"
	"github.com/nodewatch/daemonctl/internal/supervisor"
)

// doStart implements the start sequence of §4.4.
func (d *Daemon) doStart(rest []string, watchdog bool) int {
	if !d.opts.Concurrent && d.lock.IsHeld() {
		d.log.Warn("already running", zap.Int("fleet", d.opts.Fleet))
		if watchdog {
			return 0
		}
		return 1
	}

	if u, err := user.Current(); err == nil {
		d.opts.Set("invoker_uid", u.Uid)
	}

	identity := forker.Identity{RunAsUser: d.opts.RunAsUser, RunAsGroup: d.opts.RunAsGroup}
	if (identity.RunAsUser != "" || identity.RunAsGroup != "") && os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, ErrRequiresRoot)
		return 1
	}

	if d.opts.Daemonize {
		if _, err := d.forker.ForkDaemon(identity); err != nil {
			d.log.Error("daemonize failed", zap.Error(err))
			return 1
		}
		d.log.Info("console detaching; daemon forked")
		return 0
	}

	d.realm = RealmForeground
	if !d.lock.Acquire(os.Getpid()) {
		d.log.Error("foreground start failed to acquire pid lock")
		return 1
	}
	return d.continueStart(rest)
}

// continueStart is §4.4 steps 5-10, shared by the foreground path and the
// re-exec'd daemon path (Daemon.Attach's WasDaemonized branch).
func (d *Daemon) continueStart(args []string) int {
	d.router = signalrouter.New(d.log)

	if tty := os.Getenv("SSH_TTY"); tty != "" {
		d.opts.Set("tty", tty)
	}
	if logname := os.Getenv("LOGNAME"); logname != "" {
		d.opts.Set("invoker_user", logname)
	}

	var logs *logtail.Buffer
	if d.opts.ControlAPIAddr != "" {
		logs = logtail.NewBuffer()
		sink := zapcore.AddSync(logs)
		d.log = d.log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zap.DebugLevel))
		}))
	}

	hooks := d.factory(d.opts)
	if hooks == nil {
		d.log.Error("payload factory returned nil hooks")
		return 1
	}

	if hooks.Initialize != nil {
		if err := hooks.Initialize(args); err != nil {
			d.log.Error("initialize failed", zap.Error(err))
			return 1
		}
	}

	if hooks.ErrorHandler != nil {
		d.bridge.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
			return hooks.ErrorHandler(code, msg, file, line, ctx)
		}, -1)
	}

	var code int
	switch d.opts.Mode {
	case ModeFleet:
		code = d.runFleet(hooks, logs)
	default:
		code = d.runSingle(hooks, logs)
	}

	if hooks.Dismiss != nil {
		hooks.Dismiss()
	}
	d.lock.Release()
	return code
}

// runSingle runs the payload once in the current (daemon or foreground)
// realm.
func (d *Daemon) runSingle(hooks *Hooks, logs *logtail.Buffer) int {
	if hooks.Run == nil {
		d.log.Error("payload has no Run hook")
		return 1
	}
	d.startControlAPI(nil, logs)
	return d.safeRun(hooks, nil)
}

// safeRun invokes the payload's Run hook, routing an uncaught panic through
// the ErrorBridge as an exception event (§4.9) instead of crashing the
// realm. A panicking worker still exits nonzero (code 1) so the
// supervisor's reap/aggregate bookkeeping sees a normal exit, per §7's
// containment policy.
func (d *Daemon) safeRun(hooks *Hooks, workerConfig any) (code int) {
	defer func() {
		if r := recover(); r != nil {
			d.bridge.OnException(fmt.Sprintf("panic in payload Run: %v", r), workerConfig)
			code = 1
		}
	}()
	return hooks.Run(workerConfig).code()
}

// runFleet drives the Supervisor loop (§4.5), wiring the payload's
// admission/reap/signal hooks through to supervisor.Config.
func (d *Daemon) runFleet(hooks *Hooks, logs *logtail.Buffer) int {
	cfg := supervisor.Config{
		Fleet:    d.opts.Fleet,
		ExitMode: supervisor.ExitMode(d.opts.ExitMode),
		GetWorkerConfig: func() (any, bool) {
			if !d.opts.IsLaunching() {
				return nil, true // Options.Launching cleared: admit no new workers
			}
			if hooks.GetWorkerConfig == nil {
				return nil, false
			}
			cfg := hooks.GetWorkerConfig()
			return cfg, isRefusal(cfg)
		},
		GetLaunchOverride: hooks.GetLaunchOverride,
		SpawnedWorker: func(pid int, workerConfig any) {
			if hooks.SpawnedWorker != nil {
				hooks.SpawnedWorker(pid, d.realm, workerConfig)
			}
		},
		ReapedWorker: hooks.ReapedWorker,
		OnShutdown: func() {
			if hooks.Shutdown != nil {
				hooks.Shutdown()
			}
		},
		OnHupSignal: func() bool {
			if hooks.Signal == nil {
				return false
			}
			return hooks.Signal("HUP")
		},
		OnSignal: func(name string) {
			if hooks.Signal != nil {
				hooks.Signal(name)
			}
		},
	}

	sup := supervisor.New(d.log, cfg, d.forker, d.router)
	d.startControlAPI(sup, logs)
	return sup.Run()
}

// runWorkerProcess is the entry point for a process that detects it is a
// freshly re-exec'd fleet worker (forker.WasForked()). It never returns to
// command dispatch: it resets signal dispositions to default (§4.5
// admission phase, "In the child: reset signal handlers to defaults"),
// reads its handoff config, runs the payload, and exits with the
// translated exit code.
func (d *Daemon) runWorkerProcess() int {
	signalrouter.ResetForWorker()
	d.realm = RealmWorker

	var workerConfig any
	if err := forker.ReadHandoff(&workerConfig); err != nil {
		fmt.Fprintln(os.Stderr, "daemonctl: worker handoff failed:", err)
		return 1
	}

	hooks := d.factory(d.opts)
	if hooks == nil || hooks.Run == nil {
		fmt.Fprintln(os.Stderr, "daemonctl: payload has no Run hook")
		return 1
	}

	return d.safeRun(hooks, workerConfig)
}
