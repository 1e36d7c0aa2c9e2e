// Package lint runs rule-based checks over cleaned output.
package lint

import (
	"fmt"
	"regexp"
	"strings"

	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/segment"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

const (
	RuleFiller          = "filler_detected"
	RuleContextMarker   = "context_marker_in_output"
	RuleTimestampFormat = "invalid_timestamp_format"
	RuleTruncation      = "excessive_truncation"
	RuleExpansion       = "content_expansion"
	RuleManyQuestions   = "many_questions"

	maxFillerHits  = 3
	minLengthRatio = 0.3
	maxLengthRatio = 1.2
	maxQuestions   = 2
	snippetPadding = 20
)

type Issue struct {
	Severity  Severity `json:"severity"`
	Rule      string   `json:"rule"`
	Message   string   `json:"message"`
	UnitIndex int      `json:"unit"`
	Snippet   string   `json:"snippet,omitempty"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

func (r Report) Count(sev Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

func (r Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

type filler struct {
	re *regexp.Regexp
	// skip rejects a match given the text that follows it.
	skip func(rest string) bool
}

var reFollowedByThisThat = regexp.MustCompile(`^\s+(this|that)\b`)

var fillers = []filler{
	{re: regexp.MustCompile(`(?i)\buh\b`)},
	{re: regexp.MustCompile(`(?i)\bum\b`)},
	{re: regexp.MustCompile(`(?i)\bah\b`)},
	{re: regexp.MustCompile(`(?i)\ber\b`)},
	{re: regexp.MustCompile(`(?i)\byou know\b`)},
	{re: regexp.MustCompile(`(?i)\blike\b`), skip: func(rest string) bool {
		return reFollowedByThisThat.MatchString(strings.ToLower(rest))
	}},
	{re: regexp.MustCompile(`(?i)\bokay\b`)},
	{re: regexp.MustCompile(`(?i)\bso\b`), skip: func(rest string) bool {
		return !strings.HasPrefix(strings.TrimLeft(rest, " \t\n"), ",")
	}},
	{re: regexp.MustCompile(`(?i)\bbasically\b`)},
	{re: regexp.MustCompile(`(?i)\bactually\b`)},
	{re: regexp.MustCompile(`(?i)\breally\b`)},
	{re: regexp.MustCompile(`(?i)\bthe thing is\b`)},
	{re: regexp.MustCompile(`(?i)\bwhat I'm trying to say\b`)},
}

var contextMarkers = []string{
	segment.ContextMarker,
	segment.ContentMarker,
	"[VIDEO INFO]",
	"[TRANSCRIPT TO PROCESS]",
}

var (
	reBracketTime = regexp.MustCompile(`\[[\d:.]+\]`)
	reValidTime   = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2}|\d{2}:\d{2})\]$`)
	reQuestion    = regexp.MustCompile(`[^.!?]*\?`)
)

func CheckAll(results []model.UnitResult) Report {
	var rep Report
	for _, r := range results {
		rep.Issues = append(rep.Issues, Check(r.SourceText, r.OutputText, r.UnitIndex)...)
	}
	return rep
}

func Check(source, output string, unit int) []Issue {
	var out []Issue
	out = append(out, checkFillers(output, unit)...)
	out = append(out, checkMarkers(output, unit)...)
	out = append(out, checkTimestamps(output, unit)...)
	out = append(out, checkLength(source, output, unit)...)
	out = append(out, checkQuestions(output, unit)...)
	return out
}

func checkFillers(text string, unit int) []Issue {
	var out []Issue
	for _, f := range fillers {
		hits := 0
		for _, loc := range f.re.FindAllStringIndex(text, -1) {
			if f.skip != nil && f.skip(text[loc[1]:]) {
				continue
			}
			out = append(out, Issue{
				Severity:  SeverityWarning,
				Rule:      RuleFiller,
				Message:   fmt.Sprintf("possible filler word: %q", strings.ToLower(text[loc[0]:loc[1]])),
				UnitIndex: unit,
				Snippet:   snippet(text, loc[0], loc[1]),
			})
			hits++
			if hits == maxFillerHits {
				break
			}
		}
	}
	return out
}

func checkMarkers(text string, unit int) []Issue {
	var out []Issue
	for _, m := range contextMarkers {
		if strings.Contains(text, m) {
			out = append(out, Issue{
				Severity:  SeverityError,
				Rule:      RuleContextMarker,
				Message:   "context marker found in output: " + m,
				UnitIndex: unit,
			})
		}
	}
	return out
}

func checkTimestamps(text string, unit int) []Issue {
	var out []Issue
	for _, ts := range reBracketTime.FindAllString(text, -1) {
		if reValidTime.MatchString(ts) {
			continue
		}
		out = append(out, Issue{
			Severity:  SeverityWarning,
			Rule:      RuleTimestampFormat,
			Message:   "invalid timestamp format: " + ts,
			UnitIndex: unit,
		})
	}
	return out
}

func checkLength(source, output string, unit int) []Issue {
	srcLen := len([]rune(source))
	ratio := 0.0
	if srcLen > 0 {
		ratio = float64(len([]rune(output))) / float64(srcLen)
	}
	switch {
	case ratio < minLengthRatio:
		return []Issue{{
			Severity:  SeverityWarning,
			Rule:      RuleTruncation,
			Message:   fmt.Sprintf("output too short (%.0f%% of original), content may be lost", ratio*100),
			UnitIndex: unit,
		}}
	case ratio > maxLengthRatio:
		return []Issue{{
			Severity:  SeverityWarning,
			Rule:      RuleExpansion,
			Message:   fmt.Sprintf("output longer than original (%.0f%%), content may have been added", ratio*100),
			UnitIndex: unit,
		}}
	}
	return nil
}

func checkQuestions(text string, unit int) []Issue {
	n := len(reQuestion.FindAllString(text, -1))
	if n <= maxQuestions {
		return nil
	}
	return []Issue{{
		Severity:  SeverityInfo,
		Rule:      RuleManyQuestions,
		Message:   fmt.Sprintf("found %d questions, consider whether they should be statements", n),
		UnitIndex: unit,
	}}
}

func snippet(text string, start, end int) string {
	from := max(0, start-snippetPadding)
	to := min(len(text), end+snippetPadding)
	return "..." + strings.ToValidUTF8(text[from:to], "") + "..."
}
