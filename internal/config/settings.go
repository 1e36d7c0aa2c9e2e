// Package config resolves runtime settings from flags, the environment, a
// settings file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/runstore"
	"transcript-cleaner/internal/segment"
)

const (
	DefaultSettingsPath = "config/settings.json"
	DefaultStateDir     = ".transcript-cleaner"
	DefaultOutputDir    = "output"
	DefaultLanguage     = "English"

	settingsSchemaVersion = 1
)

const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvStateDir     = "TRANSCRIPT_CLEANER_STATE_DIR"
)

type Settings struct {
	SchemaVersion      int     `json:"schema_version"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
	Model              string  `json:"model,omitempty"`
	Provider           string  `json:"provider,omitempty"`
	OutputLanguage     string  `json:"output_language,omitempty"`
	ChunkSize          int     `json:"chunk_size,omitempty"`
	Overlap            int     `json:"overlap"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens,omitempty"`
	StateDir           string  `json:"state_dir,omitempty"`
	OutputDir          string  `json:"output_dir,omitempty"`
	PromptPath         string  `json:"prompt_path,omitempty"`
	LockTimeoutSeconds int     `json:"lock_timeout_seconds,omitempty"`
}

func Defaults() Settings {
	return Settings{
		SchemaVersion:      settingsSchemaVersion,
		Model:              provider.DefaultModel,
		OutputLanguage:     DefaultLanguage,
		ChunkSize:          segment.DefaultTargetSize,
		Overlap:            segment.DefaultOverlap,
		Temperature:        provider.DefaultTemperature,
		MaxTokens:          provider.DefaultMaxTokens,
		StateDir:           DefaultStateDir,
		OutputDir:          DefaultOutputDir,
		LockTimeoutSeconds: int(runstore.DefaultLockTimeout / time.Second),
	}
}

// Normalize fills zero values with defaults and drops values that cannot be
// used. An empty provider stays empty so it is inferred from the model.
func Normalize(raw Settings) Settings {
	def := Defaults()
	norm := raw
	norm.SchemaVersion = settingsSchemaVersion
	norm.Model = firstNonEmpty(norm.Model, def.Model)
	norm.Provider = normalizeProvider(norm.Provider)
	norm.OutputLanguage = firstNonEmpty(norm.OutputLanguage, def.OutputLanguage)
	norm.ChunkSize = firstPositive(norm.ChunkSize, def.ChunkSize)
	if norm.Overlap < 0 {
		norm.Overlap = def.Overlap
	}
	if norm.Temperature < 0 || norm.Temperature > 2 {
		norm.Temperature = def.Temperature
	}
	norm.MaxTokens = firstPositive(norm.MaxTokens, def.MaxTokens)
	norm.StateDir = firstNonEmpty(norm.StateDir, def.StateDir)
	norm.OutputDir = firstNonEmpty(norm.OutputDir, def.OutputDir)
	norm.PromptPath = strings.TrimSpace(norm.PromptPath)
	norm.LockTimeoutSeconds = firstPositive(norm.LockTimeoutSeconds, def.LockTimeoutSeconds)
	return norm
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case provider.NameAnthropic:
		return provider.NameAnthropic
	case provider.NameDeepSeek:
		return provider.NameDeepSeek
	default:
		return ""
	}
}

func normalizePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return DefaultSettingsPath
	}
	return p
}

// Read returns defaults when the settings file does not exist yet. Keys absent
// from the file keep their defaults, so an explicit zero overlap or
// temperature survives while an omitted one does not become zero.
func Read(path string) (Settings, error) {
	s := Defaults()
	err := runstore.ReadJSON(normalizePath(path), &s)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if s.SchemaVersion > settingsSchemaVersion {
		return Settings{}, fmt.Errorf("settings schema version %d is newer than supported %d", s.SchemaVersion, settingsSchemaVersion)
	}
	return Normalize(s), nil
}

func Save(path string, s Settings) (Settings, error) {
	norm := Normalize(s)
	norm.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := runstore.WriteJSON(normalizePath(path), norm); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return norm, nil
}

// Set updates one key from its string form. Keys match the JSON field names.
func (s *Settings) Set(key, value string) error {
	v := strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "model":
		if !provider.KnownModel(v) {
			return fmt.Errorf("unknown model %q (known: %s)", v, strings.Join(provider.Models(), ", "))
		}
		s.Model = v
	case "provider":
		if v != "" && normalizeProvider(v) == "" {
			return fmt.Errorf("unknown provider %q", v)
		}
		s.Provider = normalizeProvider(v)
	case "output_language":
		s.OutputLanguage = v
	case "chunk_size":
		return setInt(&s.ChunkSize, key, v, 1)
	case "overlap":
		return setInt(&s.Overlap, key, v, 0)
	case "max_tokens":
		return setInt(&s.MaxTokens, key, v, 1)
	case "lock_timeout_seconds":
		return setInt(&s.LockTimeoutSeconds, key, v, 1)
	case "temperature":
		f, err := parseFloat(v)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("temperature must be a number between 0 and 2")
		}
		s.Temperature = f
	case "state_dir":
		s.StateDir = v
	case "output_dir":
		s.OutputDir = v
	case "prompt_path":
		s.PromptPath = v
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
