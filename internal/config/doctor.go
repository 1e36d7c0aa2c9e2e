package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/runstore"
)

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Doctor runs preflight checks for the resolved runtime. It never calls the
// provider API.
func Doctor(ctx context.Context, rt Runtime, settingsPath string) DoctorResult {
	checks := make([]DoctorCheck, 0, 6)

	checks = append(checks, credentialCheck(rt))
	if !provider.KnownModel(rt.Model) {
		checks = append(checks, DoctorCheck{
			Name:    "model",
			OK:      true,
			Message: rt.Model + " has no price entry; estimates use the most expensive rate",
		})
	}

	stateOK, stateMsg := ensureWritableDir(rt.StateDir)
	checks = append(checks, DoctorCheck{Name: "directory:state", OK: stateOK, Message: stateMsg})
	if stateOK {
		checks = append(checks, lockCheck(ctx, rt.StateDir))
	}

	outOK, outMsg := ensureWritableDir(rt.OutputDir)
	checks = append(checks, DoctorCheck{Name: "directory:output", OK: outOK, Message: outMsg})

	cfgOK, cfgMsg := ensureWritableDir(filepath.Dir(normalizePath(settingsPath)))
	checks = append(checks, DoctorCheck{Name: "directory:config", OK: cfgOK, Message: cfgMsg})

	if rt.PromptPath != "" {
		_, err := os.Stat(rt.PromptPath)
		msg := "readable"
		if err != nil {
			msg = err.Error()
		}
		checks = append(checks, DoctorCheck{Name: "file:prompt", OK: err == nil, Message: msg})
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

func credentialCheck(rt Runtime) DoctorCheck {
	name := rt.ProviderName()
	var key, env string
	switch name {
	case provider.NameDeepSeek:
		key, env = rt.Credentials.DeepSeekKey, provider.EnvDeepSeekKey
	default:
		key, env = rt.Credentials.AnthropicKey, EnvAnthropicKey
	}
	check := DoctorCheck{Name: "credentials:" + name}
	if strings.TrimSpace(key) == "" {
		check.Message = env + " is not set"
		return check
	}
	check.OK = true
	check.Message = env + " is set"
	return check
}

// lockCheck reports a job already holding the state lock, which would make a
// new run wait and then time out.
func lockCheck(ctx context.Context, dir string) DoctorCheck {
	check := DoctorCheck{Name: "lock:state"}
	lock, err := runstore.AcquireLock(ctx, filepath.Join(dir, runstore.LockFileName), 200*time.Millisecond, 0)
	if err != nil {
		if errors.Is(err, runstore.ErrLockTimeout) {
			check.Message = "held by another process: " + err.Error()
		} else {
			check.Message = err.Error()
		}
		return check
	}
	_ = lock.Release()
	check.OK = true
	check.Message = "free"
	return check
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "transcript-cleaner-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
