package runstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/model"
)

const (
	StateFileName  = "processing_state.json"
	BackupFileName = "processing_state.backup.json"
	LockFileName   = ".processing_state.lock"
)

type Options struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
	Logger      *slog.Logger
}

// Store owns the state files of one state directory. Every operation holds
// the directory lock for its whole duration.
type Store struct {
	dir    string
	opts   Options
	logger *slog.Logger
}

func Open(dir string, opts Options) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := Mkdir(dir); err != nil {
		return nil, err
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{dir: dir, opts: opts, logger: logger}, nil
}

func (s *Store) Dir() string        { return s.dir }
func (s *Store) StatePath() string  { return filepath.Join(s.dir, StateFileName) }
func (s *Store) BackupPath() string { return filepath.Join(s.dir, BackupFileName) }
func (s *Store) LockPath() string   { return filepath.Join(s.dir, LockFileName) }

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	lock, err := AcquireLock(ctx, s.LockPath(), s.opts.LockTimeout, s.opts.LockRetry)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()
	return fn()
}

// Write refreshes last_updated_at, moves the current file to the backup slot
// and atomically installs the new content.
func (s *Store) Write(ctx context.Context, st *model.JobState) error {
	if st == nil {
		return fmt.Errorf("write state: nil job state")
	}
	return s.withLock(ctx, func() error {
		st.Touch(time.Now())
		if st.SchemaVersion == 0 {
			st.SchemaVersion = model.SchemaVersion
		}
		data, err := encodeJSON(st)
		if err != nil {
			return fmt.Errorf("marshal job state %s: %w", st.JobID, err)
		}

		exists, err := Exists(s.StatePath())
		if err != nil {
			return err
		}
		if exists {
			if err := os.Rename(s.StatePath(), s.BackupPath()); err != nil {
				return fmt.Errorf("rotate state backup: %w", err)
			}
		}
		if err := WriteBytes(s.StatePath(), data); err != nil {
			return err
		}
		s.logger.Debug("state written", "job_id", st.JobID, "status", st.Status, "completed", len(st.CompletedIndices))
		return nil
	})
}

// Read returns the primary state, falling back to the backup when the primary
// is missing or unusable. (nil, nil) means no usable state exists.
func (s *Store) Read(ctx context.Context) (*model.JobState, error) {
	var out *model.JobState
	err := s.withLock(ctx, func() error {
		st, err := s.readUnlocked()
		out = st
		return err
	})
	return out, err
}

func (s *Store) readUnlocked() (*model.JobState, error) {
	st, primaryErr := readStateFile(s.StatePath())
	if primaryErr == nil {
		return st, nil
	}
	if errors.Is(primaryErr, os.ErrPermission) {
		return nil, primaryErr
	}
	if !errors.Is(primaryErr, os.ErrNotExist) {
		s.logger.Warn("primary state unusable, trying backup", "path", s.StatePath(), "err", primaryErr)
	}

	st, backupErr := readStateFile(s.BackupPath())
	if backupErr == nil {
		s.logger.Info("recovered state from backup", "job_id", st.JobID, "status", st.Status)
		return st, nil
	}
	if errors.Is(backupErr, os.ErrPermission) {
		return nil, backupErr
	}
	if !errors.Is(backupErr, os.ErrNotExist) {
		s.logger.Warn("backup state unusable", "path", s.BackupPath(), "err", backupErr)
	}
	return nil, nil
}

func readStateFile(path string) (*model.JobState, error) {
	var st model.JobState
	if err := ReadJSON(path, &st); err != nil {
		return nil, err
	}
	if st.SchemaVersion > model.SchemaVersion {
		return nil, fmt.Errorf("state %s: unsupported schema version %d", path, st.SchemaVersion)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("state %s: %w", path, err)
	}
	return &st, nil
}

// Clear removes the primary and backup files. Missing files are not an error.
func (s *Store) Clear(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		if err := Remove(s.StatePath()); err != nil {
			return err
		}
		return Remove(s.BackupPath())
	})
}

func (s *Store) HasResumable(ctx context.Context) (bool, error) {
	st, err := s.Read(ctx)
	if err != nil || st == nil {
		return false, err
	}
	return st.Resumable(), nil
}

// StateSummary is the display record for status output.
type StateSummary struct {
	JobID         string          `json:"job_id"`
	Title         string          `json:"title"`
	SourceName    string          `json:"source_name"`
	Status        string          `json:"status"`
	Completed     int             `json:"completed"`
	Failed        int             `json:"failed"`
	Total         int             `json:"total"`
	Progress      float64         `json:"progress"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	ActualCost    decimal.Decimal `json:"actual_cost"`
	InputTokens   int             `json:"input_tokens"`
	OutputTokens  int             `json:"output_tokens"`
	Model         string          `json:"model"`
	StartedAt     time.Time       `json:"started_at"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
	Resumable     bool            `json:"resumable"`
}

func (s *Store) Summary(ctx context.Context) (*StateSummary, error) {
	st, err := s.Read(ctx)
	if err != nil || st == nil {
		return nil, err
	}
	return SummaryOf(st), nil
}

func SummaryOf(st *model.JobState) *StateSummary {
	return &StateSummary{
		JobID:         st.JobID,
		Title:         st.Title,
		SourceName:    st.SourceName,
		Status:        st.Status,
		Completed:     len(st.CompletedIndices),
		Failed:        len(st.FailedIndices),
		Total:         st.TotalUnits,
		Progress:      st.Progress(),
		EstimatedCost: st.EstimatedCost,
		ActualCost:    st.ActualCost,
		InputTokens:   st.TotalInputTokens,
		OutputTokens:  st.TotalOutputTokens,
		Model:         st.ConfigString(model.ConfigModel),
		StartedAt:     st.StartedAt,
		LastUpdatedAt: st.LastUpdatedAt,
		Resumable:     st.Resumable(),
	}
}

type NewJobOptions struct {
	SourceName    string
	SourceSize    int64
	Title         string
	TotalUnits    int
	Config        map[string]any
	EstimatedCost decimal.Decimal
}

// CreateNew builds a fresh idle state. It does not touch the disk.
func CreateNew(opts NewJobOptions) *model.JobState {
	now := time.Now().UTC()
	cfg := make(map[string]any, len(opts.Config))
	for k, v := range opts.Config {
		cfg[k] = v
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = strings.TrimSuffix(opts.SourceName, filepath.Ext(opts.SourceName))
	}
	return &model.JobState{
		SchemaVersion:    model.SchemaVersion,
		JobID:            JobID(opts.SourceName, opts.SourceSize),
		SourceName:       opts.SourceName,
		Title:            title,
		Status:           model.StatusIdle,
		StartedAt:        now,
		LastUpdatedAt:    now,
		Config:           cfg,
		TotalUnits:       opts.TotalUnits,
		CompletedIndices: []int{},
		FailedIndices:    map[int]string{},
		CachedResults:    []model.UnitResult{},
		EstimatedCost:    opts.EstimatedCost,
		ActualCost:       decimal.Zero,
	}
}

// JobID is the first 12 hex characters of sha256("<name>:<size>").
func JobID(name string, size int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", name, size)))
	return hex.EncodeToString(sum[:])[:12]
}
