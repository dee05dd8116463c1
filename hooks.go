package daemonctl

// ExitKind is the value a payload's Run hook returns to tell the supervisor
// how to translate its completion into a process exit code (§4.5).
type ExitKind string

const (
	ExitHalt    ExitKind = "halt"
	ExitError   ExitKind = "exit"
	ExitRestart ExitKind = "restart"
	ExitReload  ExitKind = "reload"
)

// exitCodes maps an ExitKind to the stable exit code contract external
// supervisors (cron, systemd, init scripts) read.
var exitCodes = map[ExitKind]int{
	ExitHalt:    0,
	ExitError:   8,
	ExitRestart: 2,
	ExitReload:  1,
}

func (k ExitKind) code() int {
	if c, ok := exitCodes[k]; ok {
		return c
	}
	return exitCodes[ExitReload] // default per §4.5 table
}

// refuseConfig is the sentinel WorkerConfig value GetWorkerConfig returns to
// cancel a single admission attempt without treating it as a crash (§9 open
// question: "refuse" is distinct from a worker crashing mid-launch).
var refuseConfig = &struct{}{}

// Refuse is the sentinel a GetWorkerConfig hook returns to tell the
// supervisor to skip this admission attempt.
func Refuse() any { return refuseConfig }

func isRefusal(cfg any) bool { return cfg == refuseConfig }

// Hooks is the capability struct a payload registers with. Every field
// except Run is optional; the host dispatches only the hooks that are non-nil (§4.8),
// replacing source-level reflective method probing with static,
// construction-time wiring (design note in §9).
type Hooks struct {
	// Preflight lets the payload add CLI commands/options before parsing.
	Preflight func(args []string) []string
	// Initialize runs once, post-daemonize, before Run / the fleet loop.
	Initialize func(args []string) error
	// Run is required: single mode runs it once in the daemon realm; fleet
	// mode runs it once per worker, passed that worker's config.
	Run func(workerConfig any) ExitKind
	// CLI handles any top-level command the dispatcher does not recognize.
	// Returning handled=false is a usage error.
	CLI func(args []string) (code int, handled bool)
	// Shutdown runs on INT/TERM before children are force-reaped.
	Shutdown func()
	// Dismiss runs after the supervisor loop has drained cleanly.
	Dismiss func()
	// Signal is offered every HUP/INT/TERM/USR1/USR2. For HUP, a truthy
	// return suppresses the default restart-event behavior.
	Signal func(sig string) (handled bool)
	// GetWorkerConfig is polled once per fleet admission attempt. Returning
	// Refuse() cancels just that attempt without affecting LaunchingFlag.
	GetWorkerConfig func() any
	// GetLaunchOverride, if true, lets one extra worker past the |fleet| cap
	// for this admission attempt (§4.5).
	GetLaunchOverride func() bool
	// SpawnedWorker runs in the parent immediately after a successful fork.
	SpawnedWorker func(pid int, parentRealm Realm, workerConfig any)
	// ReapedWorker runs immediately after a child is removed from the
	// ChildTable.
	ReapedWorker func(pid int, kind string)
	// ErrorHandler is wired into the ErrorBridge, if present.
	ErrorHandler func(code int, msg, file string, line int, ctx any) (stop bool)
}
