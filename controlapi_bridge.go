package daemonctl

import (
	"crypto/rand"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"

	"github.com/nodewatch/daemonctl/internal/controlapi"
	"github.com/nodewatch/daemonctl/internal/controlapi/logtail"
	"github.com/nodewatch/daemonctl/internal/controlapi/redishealth"
	"github.com/nodewatch/daemonctl/internal/controlapi/session"
	"github.com/nodewatch/daemonctl/internal/supervisor"
)

// controlAPIBridge narrows a Daemon (and, in fleet mode, its Supervisor)
// down to the interfaces internal/controlapi needs, without that package
// ever importing this one.
type controlAPIBridge struct {
	d     *Daemon
	sup   *supervisor.Supervisor // nil outside fleet mode
	redis *redishealth.Pinger    // nil when the control plane has no Redis backend
}

func (b *controlAPIBridge) Status() controlapi.Status {
	// IsHeld treats the caller's own pid as "not held by another"; the
	// daemon serving this endpoint is usually that very holder.
	pid, ok := b.d.lock.HeldBy()
	st := controlapi.Status{
		Realm:    b.d.realm.String(),
		LockHeld: (ok && pid == os.Getpid()) || b.d.lock.IsHeld(),
	}
	if b.sup != nil {
		st.Children = b.sup.ChildTable().Len()
		st.Launching = b.sup.IsLaunching()
		st.Aggregate = b.sup.Aggregate().Value()
	}
	if b.redis != nil {
		ok := b.redis.OK()
		st.RedisOK = &ok
	}
	return st
}

// Stop signals this same process to shut down with SIGTERM, the first
// signal an external `daemonctl stop` invocation sends; a fleet supervisor
// drains it on its next loop iteration. It does not escalate to SIGKILL,
// and in single mode nothing drains the signal router, so there the signal
// has no effect.
func (b *controlAPIBridge) Stop() int {
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		b.d.log.Warn("control plane stop: signal delivery failed", zap.Error(err))
		return 1
	}
	return 0
}

// Restart stops then starts in place; a fleet supervisor mid-loop observes
// this as an ordinary termination of the realm, same as a `restart` CLI
// invocation racing the running process.
func (b *controlAPIBridge) Restart() int { return b.d.doRestart(nil) }

// startControlAPI launches the optional HTTP control plane in its own
// goroutine when Options.ControlAPIAddr is set. It never blocks the
// supervisor loop or the single-run path; failures are logged, not fatal,
// since the control plane is an ambient convenience, not a core operation.
func (d *Daemon) startControlAPI(sup *supervisor.Supervisor, logs *logtail.Buffer) {
	if d.opts.ControlAPIAddr == "" {
		return
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		d.log.Error("control plane disabled: failed to generate session secret", zap.Error(err))
		return
	}

	store, err := session.NewStore(d.opts.ControlAPIRedis, secret)
	if err != nil {
		d.log.Error("control plane disabled", zap.Error(err))
		return
	}

	if logs == nil {
		logs = logtail.NewBuffer()
	}

	creds := controlapi.Credentials{
		AdminUser:     d.opts.ControlAPIAdminUser,
		AdminPassword: d.opts.ControlAPIAdminPassword,
		BearerToken:   d.opts.ControlAPIBearerToken,
	}

	bridge := &controlAPIBridge{d: d, sup: sup, redis: redishealth.New(d.opts.ControlAPIRedis)}
	srv := controlapi.NewServer(d.log, d.opts.ControlAPIAddr, bridge, bridge, logs, creds, store)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			d.log.Warn("control plane stopped", zap.Error(fmt.Errorf("listen: %w", err)))
		}
	}()
}
