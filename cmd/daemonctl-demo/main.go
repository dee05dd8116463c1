// Command daemonctl-demo is a minimal embedding application: it shows how a
// caller wires its own logger and payload capability struct and hands
// control to daemonctl.Daemon.Attach.
package main

import (
	"flag"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nodewatch/daemonctl"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("daemonctl-demo")

	opts := daemonctl.NewOptions("daemonctl-demo")
	opts.AppDir = "/var/lib/daemonctl-demo"
	opts.Mode = daemonctl.ModeFleet
	opts.Fleet = 3
	opts.LogLevel = os.Getenv("DAEMONCTL_DEMO_LOG_LEVEL")
	opts.ControlAPIAddr = os.Getenv("DAEMONCTL_DEMO_ADDR")
	opts.ControlAPIAdminUser = os.Getenv("DAEMONCTL_DEMO_ADMIN_USER")
	opts.ControlAPIAdminPassword = os.Getenv("DAEMONCTL_DEMO_ADMIN_PASSWORD")

	d := daemonctl.New(newPayload, opts, log)
	os.Exit(d.Attach(os.Args[1:]))
}

// workerConfig is the per-worker payload this demo hands each fleet
// member; any JSON-serializable value works.
type workerConfig struct {
	Tick time.Duration `json:"tick"`
}

// newPayload is the PayloadFactory: the registration/factory-function API
// the embedding application supplies once, instead of the supervisor
// resolving a class name reflectively.
func newPayload(opts *daemonctl.Options) *daemonctl.Hooks {
	return &daemonctl.Hooks{
		Preflight: func(args []string) []string {
			fs := flag.NewFlagSet(opts.AppName, flag.ContinueOnError)
			fs.Parse(args)
			return fs.Args()
		},
		Initialize: func(args []string) error {
			return nil
		},
		GetWorkerConfig: func() any {
			return workerConfig{Tick: 5 * time.Second}
		},
		SpawnedWorker: func(pid int, realm daemonctl.Realm, cfg any) {},
		ReapedWorker:  func(pid int, kind string) {},
		Run: func(cfg any) daemonctl.ExitKind {
			wc, _ := cfg.(workerConfig)
			// a fleet worker receives its config JSON-decoded into a map
			if m, ok := cfg.(map[string]any); ok {
				if tick, ok := m["tick"].(float64); ok {
					wc.Tick = time.Duration(tick)
				}
			}
			if wc.Tick == 0 {
				wc.Tick = time.Second
			}
			ticker := time.NewTicker(wc.Tick)
			defer ticker.Stop()
			for range ticker.C {
				// demo worker body: replace with real application logic
			}
			return daemonctl.ExitHalt
		},
		Shutdown: func() {},
		Signal: func(sig string) bool {
			return false
		},
	}
}
