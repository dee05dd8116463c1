package daemonctl

import "testing"

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions("myapp")
	if !o.Daemonize {
		t.Error("Daemonize should default to true")
	}
	if o.Mode != ModeSingle {
		t.Errorf("Mode = %q, want %q", o.Mode, ModeSingle)
	}
	if o.Fleet != 1 {
		t.Errorf("Fleet = %d, want 1", o.Fleet)
	}
	if o.ExitMode != ExitModeSuccess {
		t.Errorf("ExitMode = %q, want %q", o.ExitMode, ExitModeSuccess)
	}
	if !o.IsLaunching() {
		t.Error("Launching should default to true")
	}
}

func TestValidateRequiresAppDirOrPIDFile(t *testing.T) {
	o := NewOptions("myapp")
	if err := o.Validate(); err == nil {
		t.Fatal("expected validation error without AppDir or PIDFile")
	}

	o.AppDir = "/tmp/myapp"
	if err := o.Validate(); err != nil {
		t.Fatalf("expected success with AppDir set, got %v", err)
	}

	o2 := NewOptions("myapp")
	o2.PIDFile = "/var/run/myapp.pid"
	if err := o2.Validate(); err != nil {
		t.Fatalf("expected success with PIDFile set, got %v", err)
	}
}

func TestValidateRequiresAppName(t *testing.T) {
	o := NewOptions("")
	o.AppDir = "/tmp/x"
	if err := o.Validate(); err == nil {
		t.Fatal("expected validation error without AppName")
	}
}

func TestDefaultPIDFileDerivation(t *testing.T) {
	o := NewOptions("MyApp")
	if got, want := o.DefaultPIDFile(), "/var/run/myapp.pid"; got != want {
		t.Errorf("DefaultPIDFile() = %q, want %q", got, want)
	}

	o.PIDFile = "/custom/path.pid"
	if got := o.DefaultPIDFile(); got != "/custom/path.pid" {
		t.Errorf("DefaultPIDFile() = %q, want explicit override", got)
	}
}

func TestGetSetExtraOptions(t *testing.T) {
	o := NewOptions("myapp")
	if got := o.Get("controlapi.addr", "default"); got != "default" {
		t.Errorf("Get() unset key = %v, want default", got)
	}
	o.Set("controlapi.addr", ":9000")
	if got := o.Get("controlapi.addr", "default"); got != ":9000" {
		t.Errorf("Get() = %v, want :9000", got)
	}
}

func TestSetLaunchingClearsAdmissionGate(t *testing.T) {
	o := NewOptions("myapp")
	o.SetLaunching(false)
	if o.IsLaunching() {
		t.Error("SetLaunching(false) should clear the admission gate")
	}
}
