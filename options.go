package daemonctl

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Mode selects whether the daemon runs the payload once in-process or
// supervises a fleet of worker processes.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeFleet  Mode = "fleet"
)

// ExitMode selects how worker exit codes are folded into the daemon's own
// exit code once the fleet drains.
type ExitMode string

const (
	ExitModeSuccess   ExitMode = "success"
	ExitModeWorstCase ExitMode = "worst-case"
)

// Options is the supervisor's process-wide configuration. It is an
// explicitly-owned struct rather than a loosely typed map: the fields below
// are append-mostly during setup before Attach, and read-mostly
// afterward. Unrecognized keys passed to Set are kept in an overflow bag so
// ambient/optional components (the control-plane HTTP surface) can read
// their own settings without widening this struct for every add-on.
type Options struct {
	AppName        string `validate:"required"`
	AppNamespace   string
	AppDir         string `validate:"required_without=PIDFile"`
	AppDescription string

	PIDFile    string `validate:"required_without=AppDir"`
	Daemonize  bool
	Concurrent bool

	Mode     Mode `validate:"omitempty,oneof=single fleet"`
	Fleet    int  `validate:"omitempty,min=1"`
	ExitMode ExitMode `validate:"omitempty,oneof=success worst-case"`

	RunAsUser  string
	RunAsGroup string

	// LogLevel, when set, raises the effective severity threshold on the
	// logger passed to New — e.g. "warn" silences Info/Debug even if the
	// caller's own core would otherwise emit them.
	LogLevel string

	// Launching is runtime-mutable: the fleet supervisor reads it before
	// each admission attempt, and the payload may clear it (SetLaunching)
	// to stop admitting new workers.
	Launching bool

	// ControlAPIAddr, when non-empty, starts the optional HTTP status/
	// control surface (internal/controlapi) on this address.
	ControlAPIAddr string
	// ControlAPIRedis, when non-empty, backs the control plane's admin
	// session store with Redis instead of an in-memory cookie store.
	ControlAPIRedis string
	// ControlAPIAdminUser/Password gate Basic auth to the control plane;
	// ControlAPIBearerToken, if set, additionally allows a static machine
	// token. Leaving user empty disables Basic auth. Session auth does not
	// consult these fields.
	ControlAPIAdminUser     string
	ControlAPIAdminPassword string
	ControlAPIBearerToken   string

	mu       sync.RWMutex
	extra    map[string]any
}

// NewOptions returns Options populated with the defaults from the spec's
// option table: daemonize=true, mode=single, fleet=1, exitmode=success,
// launching=true.
func NewOptions(appname string) *Options {
	return &Options{
		AppName:   appname,
		Daemonize: true,
		Mode:      ModeSingle,
		Fleet:     1,
		ExitMode:  ExitModeSuccess,
		Launching: true,
		extra:     make(map[string]any),
	}
}

var validate = validator.New()

// Validate enforces the required-field invariants: appname is always
// required; either appdir or an explicit pidfile must be present.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// Get reads an overflow (non-struct-field) option, falling back to def.
func (o *Options) Get(key string, def any) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.extra == nil {
		return def
	}
	if v, ok := o.extra[key]; ok {
		return v
	}
	return def
}

// Set writes an overflow option. Used by payload hooks and by the start
// sequence to stash settings this struct does not name explicitly.
func (o *Options) Set(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.extra == nil {
		o.extra = make(map[string]any)
	}
	o.extra[key] = value
}

// SetLaunching toggles the admission gate. Safe to call from any goroutine;
// the fleet supervisor polls it before each admission attempt (§4.5).
func (o *Options) SetLaunching(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Launching = v
}

// IsLaunching reports the current admission gate state.
func (o *Options) IsLaunching() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Launching
}

// DefaultPIDFile derives /var/run/<appname-lowercase>.pid when PIDFile is
// unset.
func (o *Options) DefaultPIDFile() string {
	if o.PIDFile != "" {
		return o.PIDFile
	}
	return "/var/run/" + lower(o.AppName) + ".pid"
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
