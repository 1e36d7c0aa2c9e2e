package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/runner"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), DefaultFileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	recs := []runner.RunRecord{
		{SessionID: "s1", JobID: "job-a", Title: "A", Status: "paused", UnitsDone: 2, UnitsTotal: 5, Cost: decimal.RequireFromString("0.004"), Model: "m", FinishedAt: base},
		{SessionID: "s2", JobID: "job-a", Title: "A", Status: "crashed", UnitsDone: 3, UnitsTotal: 5, Cost: decimal.RequireFromString("0.006"), Model: "m", Error: "auth", FinishedAt: base.Add(time.Minute)},
		{SessionID: "s3", JobID: "job-b", Title: "B", Status: "completed", UnitsDone: 1, UnitsTotal: 1, Cost: decimal.RequireFromString("0.001"), Model: "m", FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range recs {
		if err := db.Record(ctx, r); err != nil {
			t.Fatalf("record %s: %v", r.SessionID, err)
		}
	}

	all, err := db.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].SessionID != "s3" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	jobA, err := db.List(ctx, "job-a", 10)
	if err != nil {
		t.Fatalf("list job-a: %v", err)
	}
	if len(jobA) != 2 || jobA[0].Error != "auth" || jobA[1].Error != "" {
		t.Fatalf("unexpected job-a entries: %+v", jobA)
	}
	if !jobA[0].Cost.Equal(decimal.RequireFromString("0.006")) || !jobA[0].FinishedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("round trip mismatch: %+v", jobA[0])
	}
}

func TestRecord_ReplacesSameSession(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), DefaultFileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rec := runner.RunRecord{SessionID: "s1", JobID: "j", Status: "paused", FinishedAt: time.Now()}
	_ = db.Record(ctx, rec)
	rec.Status = "completed"
	_ = db.Record(ctx, rec)

	got, err := db.List(ctx, "j", 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Status != "completed" {
		t.Fatalf("expected a single replaced row, got %+v", got)
	}
}
