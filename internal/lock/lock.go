// Package lock implements the single-instance PID-file lock (§4.1): acquire,
// release, liveness probing of the recorded PID, and stale-lock recovery.
//
// The liveness probe and stale-recovery idiom are grounded on the retrieved
// pack's cs3org/reva grace.Watcher (readPID / signal-0 check / WritePID) and
// frostyplanet-go-daemon's PID-file handling — the teacher itself never
// daemonizes its own process, only supervises external ones.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// Lock guards a single PID file.
type Lock struct {
	log  *zap.Logger
	path string
}

// New returns a Lock bound to path. The parent directory is created lazily
// on Acquire, mode 0744, matching §4.1.
func New(log *zap.Logger, path string) *Lock {
	return &Lock{log: log.Named("lock"), path: path}
}

func (l *Lock) Path() string { return l.path }

// Acquire writes pid into the lock file iff no non-stale lock currently
// exists. Returns false if another live process already owns it.
func (l *Lock) Acquire(pid int) bool {
	if l.IsHeld() {
		l.log.Warn("lock already held", zap.String("path", l.path), zap.Int("holder", l.peekPID()))
		return false
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0744); err != nil {
		l.log.Error("failed to create pidfile directory", zap.String("dir", dir), zap.Error(err))
		return false
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		l.log.Error("failed to write pidfile", zap.String("path", l.path), zap.Error(err))
		return false
	}

	l.log.Info("lock acquired", zap.String("path", l.path), zap.Int("pid", pid))
	return true
}

// Release removes the lock file. Idempotent: a missing file is not an
// error.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.log.Warn("failed to remove pidfile", zap.String("path", l.path), zap.Error(err))
	}
}

// IsHeld reports whether the lock file names a live process other than the
// caller itself. A stale lock (recorded PID not live) is cleared as a side
// effect before returning false — "recover-on-check" per §4.1.
func (l *Lock) IsHeld() bool {
	pid, ok := l.readPID()
	if !ok {
		return false
	}
	if pid == os.Getpid() {
		return false
	}
	if IsAlive(pid) {
		return true
	}
	l.log.Info("clearing stale lock", zap.String("path", l.path), zap.Int("stale_pid", pid))
	l.Release()
	return false
}

// HeldBy returns the PID recorded in the lock file without a liveness
// check, and false if the file is absent or unparsable.
func (l *Lock) HeldBy() (int, bool) {
	return l.readPID()
}

func (l *Lock) peekPID() int {
	pid, _ := l.readPID()
	return pid
}

func (l *Lock) readPID() (int, bool) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// IsAlive sends signal 0 to pid and interprets success or EPERM as alive,
// ESRCH as dead — the standard zero-signal liveness probe (cs3org/reva
// grace.go).
func IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}

// ErrNotRunning is returned by callers that expected a live lock holder and
// found none.
var ErrNotRunning = fmt.Errorf("lock: not running")
