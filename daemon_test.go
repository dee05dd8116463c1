package daemonctl

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewAppliesLogLevelOption(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	opts := NewOptions("myapp")
	opts.AppDir = "/tmp/myapp"
	opts.LogLevel = "warn"

	d := New(nil, opts, base)

	d.log.Debug("should be filtered")
	d.log.Info("should be filtered too")
	d.log.Warn("should pass")

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	if len(messages) != 1 || messages[0] != "should pass" {
		t.Fatalf("observed log messages = %v, want only [should pass] (loglevel=warn should drop Debug/Info)", messages)
	}
}

func TestNewWithoutLogLevelKeepsCallersThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	opts := NewOptions("myapp")
	opts.AppDir = "/tmp/myapp"

	d := New(nil, opts, base)
	d.log.Debug("kept")

	if got := len(logs.All()); got != 1 {
		t.Fatalf("observed %d messages, want 1 (no LogLevel option means the caller's own threshold applies unchanged)", got)
	}
}

func TestNewWithInvalidLogLevelWarnsAndKeepsCallersThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	opts := NewOptions("myapp")
	opts.AppDir = "/tmp/myapp"
	opts.LogLevel = "not-a-real-level"

	d := New(nil, opts, base)
	d.log.Debug("kept despite bad loglevel")

	found := false
	for _, entry := range logs.All() {
		if entry.Message == "invalid loglevel option, ignoring" {
			found = true
		}
	}
	if !found {
		t.Error("expected a warning about the invalid loglevel option")
	}

	debugStillSeen := false
	for _, entry := range logs.All() {
		if entry.Message == "kept despite bad loglevel" {
			debugStillSeen = true
		}
	}
	if !debugStillSeen {
		t.Error("an unparseable loglevel must not change the caller's own threshold")
	}
}
