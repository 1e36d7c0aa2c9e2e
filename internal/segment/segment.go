// Package segment splits a timestamped transcript into ordered work units,
// each carrying a short tail of its predecessor as context.
package segment

import (
	"regexp"
	"strings"
)

const (
	DefaultTargetSize = 2000
	DefaultOverlap    = 200
	DefaultTimestamp  = "00:00:00"

	searchBefore = 100
	searchAfter  = 50
	contextSlack = 50

	ContextMarker = "[CONTEXT FROM PREVIOUS SECTION]"
	ContentMarker = "[NEW CONTENT TO PROCESS]"
)

var (
	reParagraph = regexp.MustCompile(`\n\n`)
	reSentence  = regexp.MustCompile(`[.!?]\s`)
	reSentences = regexp.MustCompile(`[.!?]\s+`)
	reMarker    = regexp.MustCompile(`\[[\d:]+\]`)
	reTimestamp = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2})\]`)
)

// WorkUnit is one chunk of source text. Context is empty for the first unit.
type WorkUnit struct {
	Index     int
	Text      string
	Context   string
	Timestamp string
}

// PromptText renders the unit as sent to the provider: an optional context
// block followed by the content block.
func (u WorkUnit) PromptText() string {
	var b strings.Builder
	if u.Context != "" {
		b.WriteString(ContextMarker)
		b.WriteString("\n")
		b.WriteString(u.Context)
		b.WriteString("\n\n")
	}
	b.WriteString(ContentMarker)
	b.WriteString("\n")
	b.WriteString(u.Text)
	return b.String()
}

// Segment splits text into units of roughly targetSize characters. Sizes are
// counted in runes so multi-byte text never splits inside a character.
func Segment(text string, targetSize, overlapSize int) []WorkUnit {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlapSize < 0 {
		overlapSize = 0
	}

	runes := []rune(text)
	units := make([]WorkUnit, 0, len(runes)/targetSize+1)
	pos := 0
	prev := ""

	for pos < len(runes) {
		end := min(pos+targetSize, len(runes))
		if end < len(runes) {
			end = findSplit(runes, pos, end)
		}

		chunk := strings.TrimSpace(string(runes[pos:end]))
		pos = end
		if chunk == "" {
			continue
		}

		unit := WorkUnit{
			Index:     len(units),
			Text:      chunk,
			Timestamp: firstTimestamp(chunk),
		}
		if len(units) > 0 {
			unit.Context = contextTail(prev, overlapSize)
		}
		units = append(units, unit)
		prev = chunk
	}
	return units
}

// findSplit picks a split offset near target: last paragraph break, then last
// sentence end, then last timestamp marker, then the target itself.
func findSplit(runes []rune, start, target int) int {
	from := max(start, target-searchBefore)
	to := min(len(runes), target+searchAfter)
	window := string(runes[from:to])

	if m := reParagraph.FindAllStringIndex(window, -1); len(m) > 0 {
		return advance(start, target, from+runeLen(window[:m[len(m)-1][1]]))
	}
	if m := reSentence.FindAllStringIndex(window, -1); len(m) > 0 {
		return advance(start, target, from+runeLen(window[:m[len(m)-1][1]]))
	}
	if m := reMarker.FindAllStringIndex(window, -1); len(m) > 0 {
		return advance(start, target, from+runeLen(window[:m[len(m)-1][0]]))
	}
	return target
}

// advance guards against a split that would not move past start.
func advance(start, target, split int) int {
	if split <= start {
		return target
	}
	return split
}

func contextTail(prev string, overlap int) string {
	if overlap == 0 {
		return ""
	}
	runes := []rune(prev)
	if len(runes) <= overlap {
		return prev
	}

	tail := string(runes[max(0, len(runes)-overlap-contextSlack):])
	if loc := reSentences.FindStringIndex(tail); loc != nil {
		if ctx := strings.TrimSpace(tail[loc[1]:]); ctx != "" {
			return ctx
		}
	}
	return strings.TrimSpace(string(runes[len(runes)-overlap:]))
}

func firstTimestamp(text string) string {
	m := reTimestamp.FindStringSubmatch(text)
	if len(m) < 2 {
		return DefaultTimestamp
	}
	return m[1]
}

func runeLen(s string) int {
	return len([]rune(s))
}
