package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/segment"
)

func TestReadDefaultsWhenMissing(t *testing.T) {
	s, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("read settings failed: %v", err)
	}
	if s.Model != provider.DefaultModel {
		t.Fatalf("model default mismatch: got %q want %q", s.Model, provider.DefaultModel)
	}
	if s.ChunkSize != segment.DefaultTargetSize || s.Overlap != segment.DefaultOverlap {
		t.Fatalf("chunk defaults mismatch: %+v", s)
	}
	if s.LockTimeoutSeconds != 10 {
		t.Fatalf("lock timeout default mismatch: got %d", s.LockTimeoutSeconds)
	}
}

func TestSaveAndReadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "settings.json")
	saved, err := Save(path, Settings{Model: "deepseek-chat", Provider: " DeepSeek ", ChunkSize: -4, Temperature: 9})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Provider != provider.NameDeepSeek || saved.ChunkSize != segment.DefaultTargetSize {
		t.Fatalf("expected normalised settings, got %+v", saved)
	}
	if saved.Temperature != provider.DefaultTemperature {
		t.Fatalf("expected out-of-range temperature reset, got %v", saved.Temperature)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Model != "deepseek-chat" || got.UpdatedAt == "" || got.SchemaVersion != settingsSchemaVersion {
		t.Fatalf("unexpected read back: %+v", got)
	}
}

func TestReadRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"schema_version": 99}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for newer schema version")
	}
}

func TestReadKeepsDefaultsForOmittedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"schema_version": 1, "model": "deepseek-chat"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Overlap != segment.DefaultOverlap || s.Temperature != provider.DefaultTemperature {
		t.Fatalf("expected defaults for omitted keys, got overlap=%d temperature=%v", s.Overlap, s.Temperature)
	}

	s.Overlap = 0
	s.Temperature = 0
	if _, err := Save(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Overlap != 0 || got.Temperature != 0 {
		t.Fatalf("expected explicit zeros to survive, got overlap=%d temperature=%v", got.Overlap, got.Temperature)
	}
}

func TestSet(t *testing.T) {
	s := Defaults()
	if err := s.Set("model", "claude-3-5-haiku-20241022"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if err := s.Set("overlap", "0"); err != nil || s.Overlap != 0 {
		t.Fatalf("set overlap: err=%v overlap=%d", err, s.Overlap)
	}
	bad := []struct{ key, value string }{
		{"model", "gpt-2"},
		{"provider", "openai"},
		{"chunk_size", "0"},
		{"temperature", "abc"},
		{"nope", "1"},
	}
	for _, tc := range bad {
		if err := s.Set(tc.key, tc.value); err == nil {
			t.Fatalf("expected error for %s=%s", tc.key, tc.value)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(EnvStateDir, "/env/state")
	t.Setenv(EnvAnthropicKey, "sk-ant")
	t.Setenv(provider.EnvDeepSeekKey, "")

	file := Settings{Model: "claude-3-5-haiku-20241022", StateDir: "/file/state", ChunkSize: 1500, LockTimeoutSeconds: 3}

	rt, err := Resolve(file, Overrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rt.StateDir != "/env/state" {
		t.Fatalf("env should beat file: got %q", rt.StateDir)
	}
	if rt.ChunkSize != 1500 || rt.LockTimeout != 3*time.Second {
		t.Fatalf("file values lost: %+v", rt)
	}
	if rt.Credentials.AnthropicKey != "sk-ant" || rt.ProviderName() != provider.NameAnthropic {
		t.Fatalf("unexpected credentials/provider: %+v", rt)
	}

	zero := 0
	rt, err = Resolve(file, Overrides{StateDir: "/flag/state", Model: "deepseek-chat", Overlap: &zero})
	if err != nil {
		t.Fatalf("resolve with flags: %v", err)
	}
	if rt.StateDir != "/flag/state" || rt.Overlap != 0 || rt.ProviderName() != provider.NameDeepSeek {
		t.Fatalf("flags should win: %+v", rt)
	}

	if _, err := Resolve(file, Overrides{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unknown provider override")
	}
}

func TestLoadDotEnvWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("TC_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Setenv("TC_TEST_DOTENV", "")
	os.Unsetenv("TC_TEST_DOTENV")

	got := loadDotEnvFrom(nested)
	if got != filepath.Join(root, ".env") {
		t.Fatalf("expected .env found at root, got %q", got)
	}
	if v := os.Getenv("TC_TEST_DOTENV"); v != "from-file" {
		t.Fatalf("expected variable loaded, got %q", v)
	}
}
