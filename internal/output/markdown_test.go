package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/runstore"
)

func TestWriter_WritesMarkdownAndMetadata(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.Now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	results := []model.UnitResult{
		{UnitIndex: 0, OutputText: "First part.  "},
		{UnitIndex: 1, OutputText: "   "},
		{UnitIndex: 2, OutputText: "Second part."},
	}
	sum := model.Summary{
		UnitsProcessed:    3,
		TotalInputTokens:  100,
		TotalOutputTokens: 50,
		TotalCost:         decimal.RequireFromString("0.0123"),
		Model:             "claude-3-5-haiku-20241022",
	}

	got, err := w.Write(results, "Intro: Go / Rust?", sum, "01:02:03")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(got.MarkdownPath) != "Intro-Go-Rust-20260304-050607.md" {
		t.Fatalf("unexpected markdown name: %s", got.MarkdownPath)
	}

	md, err := os.ReadFile(got.MarkdownPath)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	want := "# Intro: Go / Rust?\n\n**Processed:** 2026-03-04\n**Model:** claude-3-5-haiku-20241022\n**Cost:** $0.0123\n**Duration:** 01:02:03\n\n---\n\nFirst part.\n\nSecond part.\n\n"
	if string(md) != want {
		t.Fatalf("markdown mismatch:\n got %q\nwant %q", md, want)
	}

	var meta Metadata
	if err := runstore.ReadJSON(got.MetadataPath, &meta); err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.Tokens.Total != 150 || !meta.CostUSD.Equal(sum.TotalCost) {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"a  b\tc":                "a-b-c",
		`x<>:"/\|?*y`:            "xy",
		"  --lead and trail--  ": "lead-and-trail",
		strings.Repeat("z", 80):  strings.Repeat("z", 50),
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("sanitize %q: got %q want %q", in, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	results := []model.UnitResult{
		{OutputText: strings.Repeat("a", 100)},
		{OutputText: strings.Repeat("b", 500)},
	}
	got := Preview(results, 350)
	if !strings.HasPrefix(got, strings.Repeat("a", 100)+"\n\n") || !strings.HasSuffix(got, "b...") {
		t.Fatalf("unexpected preview: %q", got)
	}
	if short := Preview(results, 150); short != strings.Repeat("a", 100) {
		t.Fatalf("expected second unit dropped when little budget remains, got %d chars", len(short))
	}
}
