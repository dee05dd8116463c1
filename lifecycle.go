package daemonctl

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nodewatch/daemonctl/internal/lock"
)

// dispatch is the LifecycleDispatcher of §4.3: routes the parsed top-level
// command. args[0], if present, names the command; anything else falls
// through to the payload's CLI hook.
//
// Per §4.8, Preflight runs after the core commands (status/stop/restart/
// start) are registered but before any of them are parsed out of args, so
// a payload can add or strip its own flags ahead of the core parse.
func (d *Daemon) dispatch(args []string) int {
	hooks := d.factory(d.opts)
	if hooks != nil && hooks.Preflight != nil {
		args = hooks.Preflight(args)
	}

	cmd := ""
	rest := args
	if len(args) > 0 {
		cmd = args[0]
		rest = args[1:]
	}

	if !d.opts.Daemonize {
		// foreground mode forces start regardless of the parsed command
		return d.doStart(rest, false)
	}

	switch cmd {
	case "status":
		return d.doStatus()
	case "stop":
		return d.doStop()
	case "restart":
		return d.doRestart(rest)
	case "start":
		watchdog := false
		for _, a := range rest {
			if a == "-w" || a == "--watchdog" {
				watchdog = true
			}
		}
		return d.doStart(rest, watchdog)
	default:
		return d.doFallthroughCLI(hooks, args)
	}
}

func (d *Daemon) doFallthroughCLI(hooks *Hooks, args []string) int {
	if hooks == nil || hooks.CLI == nil {
		fmt.Fprintln(os.Stderr, ErrUnhandledCommand)
		return 1
	}
	code, handled := hooks.CLI(args)
	if !handled {
		fmt.Fprintln(os.Stderr, ErrUnhandledCommand)
		return 1
	}
	return code
}

// doStatus implements the `status` command: 0 if the lock is held by a
// live process, 1 otherwise.
func (d *Daemon) doStatus() int {
	if d.lock.IsHeld() {
		return 0
	}
	return 1
}

// doStop implements `stop` (§4.3): TERM, wait 1s, KILL, wait 1s, clear the
// lock only once the holder is confirmed dead (§9 open-question
// resolution — the safer ordering).
func (d *Daemon) doStop() int {
	pid, ok := d.lock.HeldBy()
	if !ok || !d.lock.IsHeld() {
		fmt.Fprintln(os.Stderr, lock.ErrNotRunning)
		return 1
	}

	d.sendSignal(pid, syscall.SIGTERM)
	time.Sleep(1 * time.Second)

	if !processAlive(pid) {
		d.lock.Release()
		return 0
	}

	d.sendSignal(pid, syscall.SIGKILL)
	time.Sleep(1 * time.Second)

	if !processAlive(pid) {
		d.lock.Release()
		return 0
	}

	d.log.Warn("stop: process did not terminate after SIGTERM+SIGKILL", zap.Int("pid", pid))
	return 1
}

func (d *Daemon) doRestart(rest []string) int {
	_ = d.doStop() // ignore "not running"; restart always falls through to start
	return d.doStart(rest, false)
}

func (d *Daemon) sendSignal(pid int, sig syscall.Signal) {
	if err := syscall.Kill(pid, sig); err != nil {
		d.log.Warn("signal delivery failed", zap.Int("pid", pid), zap.String("signal", sig.String()), zap.Error(err))
	}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
