package daemonctl

import (
	"os/exec"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/nodewatch/daemonctl/internal/forker"
	"github.com/nodewatch/daemonctl/internal/lock"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	opts := NewOptions("testapp")
	opts.PIDFile = filepath.Join(dir, "testapp.pid")
	d := &Daemon{
		opts:   opts,
		log:    zap.NewNop(),
		forker: forker.New(zap.NewNop()),
		realm:  RealmConsole,
	}
	d.lock = lock.New(d.log, opts.DefaultPIDFile())
	return d
}

func TestStatusReflectsLockState(t *testing.T) {
	d := newTestDaemon(t)

	if code := d.doStatus(); code != 1 {
		t.Fatalf("status before start = %d, want 1", code)
	}

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	// Reap the helper as soon as it dies: an unreaped child stays a zombie,
	// and a zombie still answers the signal-0 liveness probe doStop uses.
	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()
	defer func() {
		_ = cmd.Process.Kill()
		<-waited
	}()

	if !d.lock.Acquire(cmd.Process.Pid) {
		t.Fatal("setup: failed to acquire lock for helper pid")
	}

	if code := d.doStatus(); code != 0 {
		t.Fatalf("status while running = %d, want 0", code)
	}

	if code := d.doStop(); code != 0 {
		t.Fatalf("stop() = %d, want 0 (helper process killed)", code)
	}

	if code := d.doStatus(); code != 1 {
		t.Fatalf("status after stop = %d, want 1", code)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	d := newTestDaemon(t)
	if code := d.doStop(); code != 1 {
		t.Fatalf("stop() with no lock held = %d, want 1", code)
	}
}

func TestAlreadyRunningWatchdogFlag(t *testing.T) {
	d := newTestDaemon(t)

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()
	if !d.lock.Acquire(cmd.Process.Pid) {
		t.Fatal("setup: failed to acquire lock for helper pid")
	}

	if code := d.doStart(nil, false); code != 1 {
		t.Fatalf("doStart without watchdog while running = %d, want 1", code)
	}
	if code := d.doStart(nil, true); code != 0 {
		t.Fatalf("doStart with watchdog while running = %d, want 0", code)
	}
}

func TestDispatchRunsPreflightBeforeCommandParse(t *testing.T) {
	d := newTestDaemon(t)
	d.opts.Daemonize = true

	var cliArgs []string
	d.factory = func(opts *Options) *Hooks {
		return &Hooks{
			Preflight: func(args []string) []string {
				// strips a leading global flag before the core dispatcher
				// ever looks at args[0]
				out := make([]string, 0, len(args))
				for _, a := range args {
					if a != "--verbose" {
						out = append(out, a)
					}
				}
				return out
			},
			CLI: func(args []string) (int, bool) {
				cliArgs = args
				return 0, true
			},
		}
	}

	if code := d.dispatch([]string{"--verbose", "do-something"}); code != 0 {
		t.Fatalf("dispatch() = %d, want 0", code)
	}
	if len(cliArgs) != 1 || cliArgs[0] != "do-something" {
		t.Fatalf("CLI hook saw args %v, want [do-something] (Preflight should have stripped --verbose first)", cliArgs)
	}
}
