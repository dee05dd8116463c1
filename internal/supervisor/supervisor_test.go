package supervisor

import (
	"os/exec"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nodewatch/daemonctl/internal/signalrouter"
)

// execForker spawns a real short-lived child (sleep) per ForkWorker call so
// reap() can exercise a genuine wait4 against this test process's own
// children.
type execForker struct {
	sleep string
}

func (f *execForker) ForkWorker(_ any) (int, error) {
	cmd := exec.Command("sleep", f.sleep)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}

func newTestSupervisor(t *testing.T, fleet int, sleep string) *Supervisor {
	t.Helper()
	cfg := Config{
		Fleet:    fleet,
		ExitMode: ExitModeWorstCase,
		GetWorkerConfig: func() (any, bool) {
			return nil, false
		},
	}
	return New(zap.NewNop(), cfg, &execForker{sleep: sleep}, signalrouter.New(zap.NewNop()))
}

func TestAdmitRespectsCapacityCap(t *testing.T) {
	s := newTestSupervisor(t, 2, "5")
	s.launching.Store(true)
	defer s.ForceReap()

	s.admit()

	if got := s.table.Len(); got != 2 {
		t.Fatalf("ChildTable len after admit = %d, want 2 (cap)", got)
	}
}

func TestAdmitHonorsGetLaunchOverride(t *testing.T) {
	calls := 0
	cfg := Config{
		Fleet: 1,
		GetWorkerConfig: func() (any, bool) {
			return nil, false
		},
		GetLaunchOverride: func() bool {
			calls++
			return calls <= 1 // allow exactly one over-cap launch
		},
	}
	s := New(zap.NewNop(), cfg, &execForker{sleep: "5"}, signalrouter.New(zap.NewNop()))
	s.launching.Store(true)
	defer s.ForceReap()

	s.admit()

	if got := s.table.Len(); got != 2 {
		t.Fatalf("ChildTable len = %d, want 2 (1 at cap + 1 override)", got)
	}
}

func TestGetWorkerConfigRefusalStopsAdmission(t *testing.T) {
	cfg := Config{
		Fleet: 5,
		GetWorkerConfig: func() (any, bool) {
			return nil, true // always refuse
		},
	}
	s := New(zap.NewNop(), cfg, &execForker{sleep: "5"}, signalrouter.New(zap.NewNop()))
	s.launching.Store(true)
	defer s.ForceReap()

	s.admit()

	if got := s.table.Len(); got != 0 {
		t.Fatalf("ChildTable len = %d, want 0 (refused every attempt)", got)
	}
	if !s.launching.Load() {
		t.Fatal("refusal must not clear LaunchingFlag")
	}
}

func TestReapRemovesExitedChildrenAndNotifiesReapedWorker(t *testing.T) {
	reaped := make(map[int]string)
	cfg := Config{
		Fleet:    1,
		ExitMode: ExitModeWorstCase,
		ReapedWorker: func(pid int, kind string) {
			reaped[pid] = kind
		},
	}
	s := New(zap.NewNop(), cfg, &execForker{sleep: "0"}, signalrouter.New(zap.NewNop()))

	pid, err := s.forker.ForkWorker(nil)
	if err != nil {
		t.Fatalf("ForkWorker: %v", err)
	}
	s.table.Add(pid, "worker")

	deadline := time.Now().Add(3 * time.Second)
	for s.table.Len() > 0 && time.Now().Before(deadline) {
		s.reap()
		time.Sleep(20 * time.Millisecond)
	}

	if got := s.table.Len(); got != 0 {
		t.Fatalf("ChildTable len after reap = %d, want 0", got)
	}
	if _, ok := reaped[pid]; !ok {
		t.Fatalf("ReapedWorker callback was not invoked for pid %d", pid)
	}
}

func TestForceReapIsIdempotent(t *testing.T) {
	s := newTestSupervisor(t, 3, "5")
	s.launching.Store(true)
	s.admit()

	if s.table.Len() == 0 {
		t.Fatal("setup: expected at least one admitted worker")
	}

	s.ForceReap()
	if got := s.table.Len(); got != 0 {
		t.Fatalf("ChildTable len after ForceReap = %d, want 0", got)
	}

	s.ForceReap() // second call must be a no-op, not error or hang
}
