// Package supervisor implements the fleet control loop of §4.5: admission,
// signal drain, reaping, and orderly termination, plus the force-reap
// teardown of §4.7. The loop itself is single-threaded and cooperative
// (§5) — no goroutine-per-worker supervision the way the teacher's
// ProcessManager/ProcessManager2 run external commands, since here a
// "worker" is a forked OS process, not a goroutine watching an *exec.Cmd.
// What is kept from the teacher is the vocabulary: admit, reap, force
// teardown via escalating signals.
package supervisor

import (
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nodewatch/daemonctl/internal/signalrouter"
)

// Forker is the subset of internal/forker.Forker the loop needs: spawn one
// worker and return its PID.
type Forker interface {
	ForkWorker(payload any) (int, error)
}

// Config wires the payload-facing hooks into the loop without the
// supervisor package importing the root daemonctl package (which imports
// supervisor), keeping the dependency graph acyclic.
type Config struct {
	Fleet    int
	ExitMode ExitMode

	// GetWorkerConfig is polled once per admission attempt. refuse=true
	// aborts just this attempt without clearing Launching.
	GetWorkerConfig func() (cfg any, refuse bool)
	// GetLaunchOverride, polled once per admission attempt once the cap is
	// reached, lets one more worker past |fleet|.
	GetLaunchOverride func() bool
	// SpawnedWorker runs in the parent right after a successful fork.
	SpawnedWorker func(pid int, workerConfig any)
	// ReapedWorker runs right after a child leaves the ChildTable.
	ReapedWorker func(pid int, kind string)
	// OnShutdown runs once for INT or TERM, before force-reap.
	OnShutdown func()
	// OnHupSignal runs for HUP; suppress=true skips the default restart
	// event.
	OnHupSignal func() (suppress bool)
	// OnSignal runs for USR1/USR2 ("USR1"/"USR2") and, after force-reap,
	// for the INT/TERM that triggered shutdown ("INT"/"TERM").
	OnSignal func(name string)
}

// Supervisor is the daemon-realm fleet loop.
type Supervisor struct {
	log    *zap.Logger
	cfg    Config
	forker Forker
	router *signalrouter.Router

	table *ChildTable
	agg   *ExitAggregate

	launching   atomic.Bool
	reapingDone atomic.Bool // latches ForceReap idempotency
}

func New(log *zap.Logger, cfg Config, forker Forker, router *signalrouter.Router) *Supervisor {
	return &Supervisor{
		log:    log.Named("supervisor"),
		cfg:    cfg,
		forker: forker,
		router: router,
		table:  NewChildTable(),
		agg:    NewExitAggregate(cfg.ExitMode),
	}
}

func (s *Supervisor) ChildTable() *ChildTable     { return s.table }
func (s *Supervisor) Aggregate() *ExitAggregate   { return s.agg }
func (s *Supervisor) IsLaunching() bool           { return s.launching.Load() }
func (s *Supervisor) StopLaunching()              { s.launching.Store(false) }

// Run drives the loop until LaunchingFlag is false and the ChildTable is
// empty, then restores default signal dispositions and returns the
// aggregate exit code (§4.5).
func (s *Supervisor) Run() int {
	s.launching.Store(true)

	for {
		s.admit()
		s.drainSignals()
		s.reap()

		if !s.launching.Load() && s.table.Len() == 0 {
			break
		}
		time.Sleep(1 * time.Second)
	}

	s.router.Reset()
	return s.agg.Value()
}

func (s *Supervisor) admit() {
	if s.cfg.Fleet <= 0 {
		return
	}
	for s.launching.Load() {
		if s.table.Len() >= s.cfg.Fleet {
			if s.cfg.GetLaunchOverride == nil || !s.cfg.GetLaunchOverride() {
				return
			}
		}

		var cfg any
		var refuse bool
		if s.cfg.GetWorkerConfig != nil {
			cfg, refuse = s.cfg.GetWorkerConfig()
		}
		if refuse {
			return // this admission attempt only; LaunchingFlag unchanged
		}

		pid, err := s.forker.ForkWorker(cfg)
		if err != nil {
			s.log.Error("fork failed, halting admission", zap.Error(err))
			s.launching.Store(false)
			return
		}

		s.table.Add(pid, "worker")
		if s.cfg.SpawnedWorker != nil {
			s.cfg.SpawnedWorker(pid, cfg)
		}
	}
}

func (s *Supervisor) drainSignals() {
	for _, sig := range s.router.Drain() {
		switch signalrouter.String(sig) {
		case "HUP":
			suppressed := false
			if s.cfg.OnHupSignal != nil {
				suppressed = s.cfg.OnHupSignal()
			}
			if !suppressed {
				s.log.Info("HUP received, no payload override: restart event")
				s.launching.Store(false)
			}
		case "INT", "TERM":
			name := signalrouter.String(sig)
			s.log.Info("shutdown signal received", zap.String("signal", name))
			if s.cfg.OnShutdown != nil {
				s.cfg.OnShutdown()
			}
			s.ForceReap()
			if s.cfg.OnSignal != nil {
				s.cfg.OnSignal(name)
			}
			s.launching.Store(false)
		case "USR1":
			if s.cfg.OnSignal != nil {
				s.cfg.OnSignal("USR1")
			}
		case "USR2":
			if s.cfg.OnSignal != nil {
				s.cfg.OnSignal("USR2")
			}
		case "CHLD":
			// handled uniformly by reap() below every iteration
		}
	}
}

// reap performs non-blocking wait4 calls until no more children are
// immediately reapable.
func (s *Supervisor) reap() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err == syscall.ECHILD || pid <= 0 {
			return
		}

		kind, ok := s.table.Remove(pid)
		if !ok {
			continue // not one of ours (shouldn't happen, but reap is idempotent)
		}

		s.agg.Record(ws.ExitStatus())
		s.log.Info("worker reaped", zap.Int("pid", pid), zap.Int("exit_code", ws.ExitStatus()))
		if s.cfg.ReapedWorker != nil {
			s.cfg.ReapedWorker(pid, kind)
		}
	}
}

// ForceReap sends SIGKILL to every tracked child and busy-waits until the
// ChildTable is empty (§4.7). Idempotent via a latch.
func (s *Supervisor) ForceReap() {
	if !s.reapingDone.CompareAndSwap(false, true) {
		return
	}

	for _, pid := range s.table.PIDs() {
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			s.log.Warn("force-reap kill failed", zap.Int("pid", pid), zap.Error(err))
		}
	}

	for s.table.Len() > 0 {
		s.reap()
		if s.table.Len() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}
