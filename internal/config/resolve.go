package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"transcript-cleaner/internal/provider"
)

// Overrides carries command-line values. Zero values mean "not set"; Overlap
// is a pointer because zero is a legal overlap.
type Overrides struct {
	Model      string
	Provider   string
	Language   string
	ChunkSize  int
	Overlap    *int
	StateDir   string
	OutputDir  string
	PromptPath string
}

type Runtime struct {
	Settings
	LockTimeout time.Duration
	Credentials provider.Credentials
}

// Resolve applies flag > env > settings file > default.
func Resolve(file Settings, o Overrides) (Runtime, error) {
	s := Normalize(file)
	s.Model = firstNonEmpty(o.Model, s.Model)
	if o.Provider != "" {
		p := normalizeProvider(o.Provider)
		if p == "" {
			return Runtime{}, fmt.Errorf("unknown provider %q", o.Provider)
		}
		s.Provider = p
	}
	s.OutputLanguage = firstNonEmpty(o.Language, s.OutputLanguage)
	s.ChunkSize = firstPositive(o.ChunkSize, s.ChunkSize)
	if o.Overlap != nil {
		if *o.Overlap < 0 {
			return Runtime{}, fmt.Errorf("overlap must be >= 0")
		}
		s.Overlap = *o.Overlap
	}
	s.StateDir = firstNonEmpty(o.StateDir, os.Getenv(EnvStateDir), s.StateDir)
	s.OutputDir = firstNonEmpty(o.OutputDir, s.OutputDir)
	s.PromptPath = firstNonEmpty(o.PromptPath, s.PromptPath)

	return Runtime{
		Settings:    s,
		LockTimeout: time.Duration(s.LockTimeoutSeconds) * time.Second,
		Credentials: provider.Credentials{
			AnthropicKey:    os.Getenv(EnvAnthropicKey),
			DeepSeekKey:     os.Getenv(provider.EnvDeepSeekKey),
			DeepSeekBaseURL: os.Getenv(provider.EnvDeepSeekBaseURL),
		},
	}, nil
}

// ProviderName is the configured provider, or the one implied by the model.
func (r Runtime) ProviderName() string {
	if r.Provider != "" {
		return r.Provider
	}
	return provider.ProviderFor(r.Model)
}

// LoadDotEnv loads the nearest .env found walking up from the working
// directory. Variables already set in the environment win. Returns the loaded
// path, or "" when none was found.
func LoadDotEnv() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return loadDotEnvFrom(wd)
}

func loadDotEnvFrom(dir string) string {
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				return p
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func setInt(dst *int, key, raw string, min int) error {
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return fmt.Errorf("%s must be an integer >= %d", key, min)
	}
	*dst = n
	return nil
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}
