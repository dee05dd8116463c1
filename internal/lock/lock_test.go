package lock

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	dir := t.TempDir()
	return New(zap.NewNop(), filepath.Join(dir, "test.pid"))
}

func TestAcquireRelease(t *testing.T) {
	l := newTestLock(t)

	if !l.Acquire(os.Getpid()) {
		t.Fatal("expected first Acquire to succeed")
	}

	pid, ok := l.HeldBy()
	if !ok || pid != os.Getpid() {
		t.Fatalf("HeldBy() = %d, %v; want %d, true", pid, ok, os.Getpid())
	}

	// IsHeld treats the caller's own pid as "not held by another".
	if l.IsHeld() {
		t.Fatal("IsHeld() should be false for self-owned lock")
	}

	l.Release()
	if _, ok := l.HeldBy(); ok {
		t.Fatal("HeldBy() should report absent after Release")
	}
}

func TestAcquireFailsAgainstLiveOther(t *testing.T) {
	l := newTestLock(t)

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	if !l.Acquire(cmd.Process.Pid) {
		t.Fatal("setup: Acquire for helper pid failed")
	}

	if !l.IsHeld() {
		t.Fatal("IsHeld() should be true while helper process is alive")
	}
	if got := l.Acquire(os.Getpid()); got {
		t.Fatal("Acquire should fail while a live holder exists")
	}
}

func TestStaleLockRecovered(t *testing.T) {
	l := newTestLock(t)

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	deadPID := cmd.Process.Pid

	if !l.Acquire(deadPID) {
		t.Fatal("setup: Acquire for now-dead pid failed")
	}

	if l.IsHeld() {
		t.Fatal("IsHeld() should detect the stale lock and return false")
	}
	if _, ok := l.HeldBy(); ok {
		t.Fatal("stale lock file should have been removed as a side effect of IsHeld")
	}
}

func TestIsAliveSelf(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Fatal("IsAlive(self) should be true")
	}
}
