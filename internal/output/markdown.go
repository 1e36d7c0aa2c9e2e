// Package output renders finished jobs as Markdown documents.
package output

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/runstore"
)

var (
	reUnsafe = regexp.MustCompile(`[<>:"/\\|?*]`)
	reSpaces = regexp.MustCompile(`\s+`)
)

type Metadata struct {
	Title            string          `json:"title"`
	OriginalDuration string          `json:"original_duration,omitempty"`
	ProcessedAt      time.Time       `json:"processed_at"`
	Model            string          `json:"model"`
	CostUSD          decimal.Decimal `json:"cost_usd"`
	UnitsProcessed   int             `json:"units_processed"`
	FailedUnits      int             `json:"failed_units"`
	Tokens           TokenCounts     `json:"tokens"`
}

type TokenCounts struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

type Writer struct {
	Dir string
	Now func() time.Time
}

type Written struct {
	MarkdownPath string
	MetadataPath string
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Now: time.Now}
}

// Write saves <title>-<YYYYMMDD-HHMMSS>.md and its -metadata.json sibling.
func (w *Writer) Write(results []model.UnitResult, title string, sum model.Summary, duration string) (Written, error) {
	now := w.Now()
	meta := Metadata{
		Title:            title,
		OriginalDuration: duration,
		ProcessedAt:      now.UTC(),
		Model:            sum.Model,
		CostUSD:          sum.TotalCost,
		UnitsProcessed:   sum.UnitsProcessed,
		FailedUnits:      sum.FailedUnitCount,
		Tokens: TokenCounts{
			Input:  sum.TotalInputTokens,
			Output: sum.TotalOutputTokens,
			Total:  sum.TotalInputTokens + sum.TotalOutputTokens,
		},
	}

	base := SanitizeFilename(title)
	if base == "" {
		base = "transcript"
	}
	base += "-" + now.Format("20060102-150405")
	out := Written{
		MarkdownPath: filepath.Join(w.Dir, base+".md"),
		MetadataPath: filepath.Join(w.Dir, base+"-metadata.json"),
	}

	if err := runstore.WriteBytes(out.MarkdownPath, []byte(Render(results, meta))); err != nil {
		return Written{}, err
	}
	if err := runstore.WriteJSON(out.MetadataPath, meta); err != nil {
		return Written{}, err
	}
	return out, nil
}

func Render(results []model.UnitResult, meta Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	fmt.Fprintf(&b, "**Processed:** %s\n", meta.ProcessedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Model:** %s\n", meta.Model)
	fmt.Fprintf(&b, "**Cost:** $%s\n", meta.CostUSD.StringFixed(4))
	if meta.OriginalDuration != "" {
		fmt.Fprintf(&b, "**Duration:** %s\n", meta.OriginalDuration)
	}
	b.WriteString("\n---\n\n")
	for _, r := range results {
		text := strings.TrimSpace(r.OutputText)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func SanitizeFilename(title string) string {
	safe := reUnsafe.ReplaceAllString(title, "")
	safe = reSpaces.ReplaceAllString(strings.TrimSpace(safe), "-")
	r := []rune(safe)
	if len(r) > 50 {
		r = r[:50]
	}
	return strings.Trim(string(r), "-")
}

// Preview joins cleaned text up to maxChars, cutting the last unit when more
// than 100 characters of budget remain.
func Preview(results []model.UnitResult, maxChars int) string {
	var parts []string
	total := 0
	for _, r := range results {
		text := []rune(strings.TrimSpace(r.OutputText))
		if total+len(text) > maxChars {
			if remaining := maxChars - total; remaining > 100 {
				parts = append(parts, string(text[:remaining])+"...")
			}
			break
		}
		parts = append(parts, string(text))
		total += len(text)
	}
	return strings.Join(parts, "\n\n")
}
