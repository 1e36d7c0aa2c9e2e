package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"transcript-cleaner/internal/runstore"
)

func doctorRuntime(t *testing.T, anthropicKey string) (Runtime, string) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv(EnvAnthropicKey, anthropicKey)
	t.Setenv(EnvStateDir, "")
	rt, err := Resolve(Settings{
		StateDir:  filepath.Join(tmp, "state"),
		OutputDir: filepath.Join(tmp, "out"),
	}, Overrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return rt, filepath.Join(tmp, "config", "settings.json")
}

func findCheck(res DoctorResult, name string) (DoctorCheck, bool) {
	for _, c := range res.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return DoctorCheck{}, false
}

func TestDoctorAllChecksPass(t *testing.T) {
	rt, cfg := doctorRuntime(t, "sk-ant-test")
	res := Doctor(context.Background(), rt, cfg)
	if !res.OK {
		t.Fatalf("expected all checks to pass, got %+v", res.Checks)
	}
	if c, ok := findCheck(res, "lock:state"); !ok || c.Message != "free" {
		t.Fatalf("expected free lock check, got %+v", c)
	}
}

func TestDoctorReportsMissingKey(t *testing.T) {
	rt, cfg := doctorRuntime(t, "")
	res := Doctor(context.Background(), rt, cfg)
	if res.OK {
		t.Fatal("expected doctor to fail without an API key")
	}
	c, ok := findCheck(res, "credentials:anthropic")
	if !ok || c.OK || c.Message != "ANTHROPIC_API_KEY is not set" {
		t.Fatalf("unexpected credential check: %+v", c)
	}
}

func TestDoctorReportsHeldLock(t *testing.T) {
	rt, cfg := doctorRuntime(t, "sk-ant-test")
	if err := runstore.Mkdir(rt.StateDir); err != nil {
		t.Fatal(err)
	}
	lock, err := runstore.AcquireLock(context.Background(), filepath.Join(rt.StateDir, runstore.LockFileName), time.Second, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	res := Doctor(context.Background(), rt, cfg)
	c, ok := findCheck(res, "lock:state")
	if !ok || c.OK {
		t.Fatalf("expected held lock to fail the check, got %+v", c)
	}
}
