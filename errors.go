package daemonctl

import "errors"

// Sentinel errors surfaced by Attach's configuration/permission error paths
// (§7).
var (
	ErrMissingOptions    = errors.New("daemonctl: appname and appdir or pidfile are required")
	ErrRequiresRoot      = errors.New("daemonctl: runasuser/runasgroup require root")
	ErrUnhandledCommand  = errors.New("daemonctl: unhandled command")
)
