// Package transcript reads subtitle files into plain timestamped text.
package transcript

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
)

type Segment struct {
	Index int
	Start string
	End   string
	Text  string
}

var (
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reManyBreaks = regexp.MustCompile(`\n{2,}`)
	reLoneMarker = regexp.MustCompile(`\n+(\[[\d:]+\])\n+`)
)

func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt", ".vtt", ".txt":
		return true
	default:
		return false
	}
}

// ParseFile picks the parser from the file extension.
func ParseFile(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}
	return Parse(data, filepath.Base(path))
}

func Parse(data []byte, name string) ([]Segment, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var (
		subs *astisub.Subtitles
		err  error
	)
	switch ext {
	case ".srt":
		subs, err = astisub.ReadFromSRT(bytes.NewReader(data))
	case ".vtt":
		subs, err = astisub.ReadFromWebVTT(bytes.NewReader(data))
	case ".txt":
		return plainSegments(string(data)), nil
	default:
		return nil, fmt.Errorf("unsupported transcript format %q (expected .srt, .vtt or .txt)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	out := make([]Segment, 0, len(subs.Items))
	for i, it := range subs.Items {
		lines := make([]string, 0, len(it.Lines))
		for _, l := range it.Lines {
			lines = append(lines, l.String())
		}
		out = append(out, Segment{
			Index: i + 1,
			Start: clock(it.StartAt),
			End:   clock(it.EndAt),
			Text:  cleanText(strings.Join(lines, " ")),
		})
	}
	return dedupe(out), nil
}

func plainSegments(text string) []Segment {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	return []Segment{{Index: 1, Text: text}}
}

// PlainText joins segments, inserting a [HH:MM:SS] marker whenever the start
// time changes.
func PlainText(segs []Segment) string {
	var lines []string
	current := ""
	for _, s := range segs {
		if s.Start != "" && s.Start != current {
			lines = append(lines, "\n["+s.Start+"]")
			current = s.Start
		}
		lines = append(lines, s.Text)
	}
	return normalizeWhitespace(strings.Join(lines, "\n"))
}

func normalizeWhitespace(text string) string {
	text = reManyBreaks.ReplaceAllString(text, "\n\n")
	text = reLoneMarker.ReplaceAllString(text, "\n$1 ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = reManyBreaks.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func cleanText(s string) string {
	s = reTag.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// dedupe drops consecutive repeats, which auto-generated captions produce a lot.
func dedupe(segs []Segment) []Segment {
	if len(segs) == 0 {
		return segs
	}
	out := []Segment{segs[0]}
	for _, s := range segs[1:] {
		if s.Text != out[len(out)-1].Text {
			out = append(out, s)
		}
	}
	return out
}

func clock(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
