package runstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), Options{LockTimeout: time.Second, LockRetry: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func newState(total int) *model.JobState {
	return CreateNew(NewJobOptions{
		SourceName: "talk.srt",
		SourceSize: 1234,
		TotalUnits: total,
		Config:     map[string]any{model.ConfigModel: "claude-3-5-haiku-20241022"},
	})
}

func addResult(st *model.JobState, idx int, cost string) {
	st.AddResult(model.UnitResult{
		UnitIndex:    idx,
		SourceText:   "src",
		OutputText:   "out",
		InputTokens:  10,
		OutputTokens: 20,
		Cost:         decimal.RequireFromString(cost),
	})
}

func TestWriteRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(3)
	if err := st.Transition(model.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	addResult(st, 0, "0.0015")
	addResult(st, 1, "0.0021")

	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil {
		t.Fatalf("expected state, got nil")
	}
	if got.JobID != st.JobID || got.Status != model.StatusProcessing || got.TotalUnits != 3 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if !got.ActualCost.Equal(decimal.RequireFromString("0.0036")) {
		t.Fatalf("actual cost mismatch: %s", got.ActualCost)
	}
	if len(got.CompletedIndices) != 2 || got.Title != "talk" {
		t.Fatalf("unexpected completed/title: %v %q", got.CompletedIndices, got.Title)
	}
}

func TestWrite_RotatesBackupAndLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(2)

	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := os.Stat(s.BackupPath()); !os.IsNotExist(err) {
		t.Fatalf("expected no backup after first write, got %v", err)
	}

	_ = st.Transition(model.StatusProcessing)
	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("second write: %v", err)
	}

	var backup model.JobState
	if err := ReadJSON(s.BackupPath(), &backup); err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if backup.Status != model.StatusIdle {
		t.Fatalf("backup should hold the previous write, got status %s", backup.Status)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tc-tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestRead_CorruptPrimaryFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(2)
	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = st.Transition(model.StatusProcessing)
	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := os.WriteFile(s.StatePath(), []byte(`{"job_id": "trunc`), 0o644); err != nil {
		t.Fatalf("corrupt primary: %v", err)
	}
	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.Status != model.StatusIdle {
		t.Fatalf("expected backup state, got %+v", got)
	}
}

func TestRead_MissingPrimaryFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(2)
	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(s.StatePath(), s.BackupPath()); err != nil {
		t.Fatalf("simulate interrupted rotation: %v", err)
	}

	got, err := s.Read(ctx)
	if err != nil || got == nil {
		t.Fatalf("expected backup state, got %v %v", got, err)
	}
}

func TestRead_InvalidStateTreatedAsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	bad := newState(2)
	bad.CompletedIndices = []int{0}
	if err := WriteJSON(s.StatePath(), bad); err != nil {
		t.Fatalf("write invalid state: %v", err)
	}

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no usable state, got %+v", got)
	}
}

func TestRead_NoState(t *testing.T) {
	s := openStore(t)
	got, err := s.Read(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
	ok, err := s.HasResumable(context.Background())
	if err != nil || ok {
		t.Fatalf("expected no resumable job, got %v %v", ok, err)
	}
}

func TestClear_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(1)
	_ = s.Write(ctx, st)
	_ = s.Write(ctx, st)

	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
	}
	for _, p := range []string{s.StatePath(), s.BackupPath()} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, got %v", filepath.Base(p), err)
		}
	}
}

func TestWrite_TimesOutUnderContention(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), Options{LockTimeout: 80 * time.Millisecond, LockRetry: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	held, err := AcquireLock(ctx, s.LockPath(), time.Second, 0)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer func() {
		_ = held.Release()
	}()

	if err := s.Write(ctx, newState(1)); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if _, err := s.Read(ctx); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout on read, got %v", err)
	}
}

func TestWrite_LastUpdatedNeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(1)
	future := time.Now().Add(time.Hour).UTC()
	st.LastUpdatedAt = future

	if err := s.Write(ctx, st); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !st.LastUpdatedAt.Equal(future) {
		t.Fatalf("last_updated_at moved backwards: %s", st.LastUpdatedAt)
	}
}

func TestJobID(t *testing.T) {
	a := JobID("talk.srt", 1234)
	if len(a) != 12 {
		t.Fatalf("expected 12 hex chars, got %q", a)
	}
	if a != JobID("talk.srt", 1234) {
		t.Fatalf("job id must be deterministic")
	}
	if a == JobID("talk.srt", 1235) {
		t.Fatalf("job id should depend on size")
	}
}

func TestSummaryOf(t *testing.T) {
	st := newState(4)
	_ = st.Transition(model.StatusProcessing)
	addResult(st, 0, "0.01")
	st.AddFailure(1, "boom")

	sum := SummaryOf(st)
	if sum.Completed != 1 || sum.Failed != 1 || sum.Total != 4 || !sum.Resumable {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Progress != 25 {
		t.Fatalf("progress mismatch: %v", sum.Progress)
	}
	if sum.Model != "claude-3-5-haiku-20241022" {
		t.Fatalf("model mismatch: %q", sum.Model)
	}
}
