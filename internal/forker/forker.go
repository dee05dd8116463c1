// Package forker realizes the OS fork primitive of §4.2 the only way Go
// permits: a live, multi-threaded Go runtime cannot safely fork(2) and
// continue as two independent processes, so every daemon implementation in
// the retrieved pack (frostyplanet-go-daemon's Context.Reborn/WasReborn,
// cs3org/reva's grace.forkChild) instead re-executes the same binary with
// an environment marker naming the realm the new process should assume, and
// hands any per-call payload down over an inherited pipe.
//
// Forker mirrors that idiom: ForkDaemon splits console → daemon (§4.4 step
// 4); ForkWorker splits daemon → worker for fleet admission (§4.5).
package forker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"go.uber.org/zap"
)

const (
	realmEnvKey   = "_DAEMONCTL_REALM"
	realmDaemon   = "daemon"
	realmWorker   = "worker"
	payloadFDKey  = "_DAEMONCTL_PAYLOAD_FD"
	handoffFD     = 3
)

// Identity names the post-fork user/group to switch to (§4.2 step c).
// Empty fields mean "do not switch".
type Identity struct {
	RunAsUser  string
	RunAsGroup string
}

// Forker drives self-re-exec based forking.
type Forker struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Forker {
	return &Forker{log: log.Named("forker")}
}

// WasDaemonized reports whether this process is the re-exec'd daemon child
// (i.e. ForkDaemon already ran in a now-exited console ancestor).
func WasDaemonized() bool {
	return os.Getenv(realmEnvKey) == realmDaemon
}

// WasForked reports whether this process is the re-exec'd worker child.
func WasForked() bool {
	return os.Getenv(realmEnvKey) == realmWorker
}

// ForkDaemon splits console → daemon. Called from the console side before
// any realm marker is present: it re-execs the binary with the daemon
// marker set and SysProcAttr.Setsid so the new process creation step
// atomically plays the role a post-fork setsid(2) would in a native fork.
// identity, when non-empty, is applied via SysProcAttr.Credential — the
// safe Go equivalent of a post-fork setuid/setgid in a still-running
// process. Returns the new process's PID; the console caller exits 0
// immediately afterward per §4.4 step 4.
func (f *Forker) ForkDaemon(identity Identity) (int, error) {
	var cred *syscall.Credential
	if identity.RunAsUser != "" || identity.RunAsGroup != "" {
		if os.Geteuid() != 0 {
			return 0, fmt.Errorf("forker: identity switch requires root")
		}
		cred = f.resolveCredential(identity)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("forker: resolve executable: %w", err)
	}

	attr := &os.ProcAttr{
		Env:   append(os.Environ(), realmEnvKey+"="+realmDaemon),
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys: &syscall.SysProcAttr{
			Setsid:     true,
			Credential: cred,
		},
	}

	proc, err := os.StartProcess(exe, os.Args, attr)
	if err != nil {
		return 0, fmt.Errorf("forker: start daemon: %w", err)
	}

	f.log.Info("daemon forked", zap.Int("pid", proc.Pid))
	return proc.Pid, nil
}

// ForkWorker splits daemon → worker for one fleet admission. payload is the
// JSON-encoded per-worker config from the payload's GetWorkerConfig hook.
// Like ForkDaemon, this re-execs the same binary, tagged with the worker
// marker, and hands payload down over an inherited pipe rather than argv
// (payloads are dynamic per launch and cannot be round-tripped through a
// restarted main() any other way). Setpgid+Pdeathsig mirror the teacher's
// process.go/process_manager.go convention of isolating a supervised child
// into its own process group and tying its lifetime to the parent's.
func (f *Forker) ForkWorker(payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("forker: marshal worker config: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("forker: create handoff pipe: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return 0, fmt.Errorf("forker: resolve executable: %w", err)
	}

	// Drop the realm marker this (daemon) process inherited: os.Getenv in
	// the child returns the first of duplicate keys, so a kept daemon marker
	// would shadow the worker marker appended below.
	env := make([]string, 0, len(os.Environ())+2)
	markerPrefix := realmEnvKey + "="
	for _, kv := range os.Environ() {
		if len(kv) < len(markerPrefix) || kv[:len(markerPrefix)] != markerPrefix {
			env = append(env, kv)
		}
	}

	attr := &os.ProcAttr{
		Env: append(env,
			realmEnvKey+"="+realmWorker,
			payloadFDKey+"="+strconv.Itoa(handoffFD),
		),
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr, r},
		Sys: &syscall.SysProcAttr{
			Setpgid:   true,
			Pdeathsig: syscall.SIGKILL,
		},
	}

	proc, err := os.StartProcess(exe, os.Args, attr)
	_ = r.Close()
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("forker: start worker: %w", err)
	}

	if _, err := w.Write(append(body, '\n')); err != nil {
		f.log.Warn("failed writing worker handoff payload", zap.Error(err))
	}
	_ = w.Close()

	f.log.Info("worker forked", zap.Int("pid", proc.Pid))
	return proc.Pid, nil
}

// ReadHandoff reads the worker config payload handed down by ForkWorker.
// Called once, at process startup, by a process for which WasForked() is
// true, and unmarshals it into v.
func ReadHandoff(v any) error {
	fdStr := os.Getenv(payloadFDKey)
	if fdStr == "" {
		return fmt.Errorf("forker: no handoff fd in environment")
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return fmt.Errorf("forker: invalid handoff fd %q: %w", fdStr, err)
	}
	f := os.NewFile(uintptr(fd), "handoff")
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("forker: read handoff payload: %w", err)
	}
	return json.Unmarshal(line, v)
}

// resolveCredential resolves identity into a syscall.Credential. Per §4.2,
// an unknown user or group name is not fatal: it logs a warning and that
// field is left unswitched rather than aborting ForkDaemon. If nothing
// resolves at all, it returns nil so the caller applies no Credential
// (equivalent to not requesting a switch).
func (f *Forker) resolveCredential(identity Identity) *syscall.Credential {
	cred := &syscall.Credential{}
	resolved := false

	if identity.RunAsGroup != "" {
		if g, err := user.LookupGroup(identity.RunAsGroup); err != nil {
			f.log.Warn("unknown group, proceeding without group switch", zap.String("group", identity.RunAsGroup), zap.Error(err))
		} else if gid, err := strconv.Atoi(g.Gid); err == nil {
			cred.Gid = uint32(gid)
			resolved = true
		}
	}

	if identity.RunAsUser != "" {
		u, err := user.Lookup(identity.RunAsUser)
		if err != nil {
			f.log.Warn("unknown user, proceeding without user switch", zap.String("user", identity.RunAsUser), zap.Error(err))
		} else {
			if uid, err := strconv.Atoi(u.Uid); err == nil {
				cred.Uid = uint32(uid)
				resolved = true
			}
			if identity.RunAsGroup == "" {
				if gid, err := strconv.Atoi(u.Gid); err == nil {
					cred.Gid = uint32(gid)
				}
			}
		}
	}

	if !resolved {
		return nil
	}
	return cred
}
