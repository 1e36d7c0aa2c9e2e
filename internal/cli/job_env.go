package cli

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"transcript-cleaner/internal/config"
	"transcript-cleaner/internal/history"
	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/runner"
	"transcript-cleaner/internal/runstore"
	"transcript-cleaner/internal/segment"
	"transcript-cleaner/internal/transcript"
)

// newCompleter is replaced in tests.
var newCompleter = provider.NewCompleter

type commonFlags struct {
	config   *string
	stateDir *string
	verbose  *bool
	jsonOut  *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:   fs.String("config", config.DefaultSettingsPath, "settings file path"),
		stateDir: fs.String("state-dir", "", "job state directory (default: settings/env)"),
		verbose:  fs.Bool("verbose", false, "debug logging on stderr"),
		jsonOut:  fs.Bool("json", false, "print JSON output"),
	}
}

type jobEnv struct {
	rt     config.Runtime
	store  *runstore.Store
	logger *slog.Logger
}

func openEnv(c commonFlags, o config.Overrides) (*jobEnv, error) {
	file, err := config.Read(strings.TrimSpace(*c.config))
	if err != nil {
		return nil, err
	}
	o.StateDir = firstNonEmpty(o.StateDir, *c.stateDir)
	rt, err := config.Resolve(file, o)
	if err != nil {
		return nil, err
	}
	logger := newLogger(*c.verbose, os.Stderr)
	store, err := runstore.Open(rt.StateDir, runstore.Options{
		LockTimeout: rt.LockTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &jobEnv{rt: rt, store: store, logger: logger}, nil
}

func (e *jobEnv) historyPath() string {
	return filepath.Join(e.store.Dir(), history.DefaultFileName)
}

// newRunner builds the provider client for the given job config and opens
// the history ledger. The returned close func releases the ledger.
func (e *jobEnv) newRunner(providerName, modelName string, maxTokens int, temperature float64) (*runner.Runner, func(), error) {
	completer, err := newCompleter(providerName, modelName, e.rt.Credentials)
	if err != nil {
		return nil, nil, err
	}
	client := provider.NewClient(completer, provider.Settings{
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})

	opts := []runner.Option{runner.WithLogger(e.logger)}
	closeFn := func() {}
	hist, err := history.Open(e.historyPath())
	if err != nil {
		e.logger.Warn("history ledger unavailable", "err", err)
	} else {
		opts = append(opts, runner.WithRecorder(hist))
		closeFn = func() { _ = hist.Close() }
	}
	return runner.New(client, e.store, opts...), closeFn, nil
}

type jobSource struct {
	Path     string
	Name     string
	Size     int64
	Duration string
	Units    []segment.WorkUnit
}

func loadSource(path string, chunkSize, overlap int) (jobSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return jobSource{}, fmt.Errorf("--input is required")
	}
	if !transcript.IsSupported(path) {
		return jobSource{}, fmt.Errorf("unsupported transcript format %q (expected .srt, .vtt or .txt)", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return jobSource{}, fmt.Errorf("stat transcript: %w", err)
	}
	segs, err := transcript.ParseFile(path)
	if err != nil {
		return jobSource{}, err
	}
	text := transcript.PlainText(segs)
	if strings.TrimSpace(text) == "" {
		return jobSource{}, fmt.Errorf("transcript %s has no text", path)
	}

	duration := ""
	if n := len(segs); n > 0 {
		duration = segs[n-1].End
	}
	return jobSource{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		Duration: duration,
		Units:    segment.Segment(text, chunkSize, overlap),
	}, nil
}

func loadTemplate(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return provider.DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt template: %w", err)
	}
	return string(data), nil
}

// sourceForState rebuilds the units of a saved job from its config snapshot
// and refuses when the source file no longer matches the job id.
func sourceForState(st *model.JobState) (jobSource, error) {
	path := st.ConfigString(model.ConfigSourcePath)
	if path == "" {
		return jobSource{}, fmt.Errorf("job %s has no source path recorded", st.JobID)
	}
	src, err := loadSource(path, st.ConfigInt(model.ConfigChunkSize), st.ConfigInt(model.ConfigOverlap))
	if err != nil {
		return jobSource{}, err
	}
	if id := runstore.JobID(src.Name, src.Size); id != st.JobID {
		return jobSource{}, fmt.Errorf("source %s changed since job %s was created (now %s)", path, st.JobID, id)
	}
	return src, nil
}
