// Package estimate prices a job before any paid call is made.
package estimate

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/segment"
)

// ConfirmThreshold is the estimated cost above which the CLI asks before
// starting a job.
var ConfirmThreshold = decimal.NewFromInt(1)

const (
	outputRatio  = 0.8
	encodingName = "cl100k_base"
)

var secondsPerUnit = map[string]int{
	provider.ModelSonnet:           5,
	provider.ModelHaiku:            3,
	provider.ModelDeepSeekChat:     4,
	provider.ModelDeepSeekReasoner: 8,
}

type Breakdown struct {
	Model              string          `json:"model"`
	Units              int             `json:"units"`
	InputTokens        int             `json:"input_tokens"`
	OutputTokensEst    int             `json:"output_tokens_est"`
	InputCost          decimal.Decimal `json:"input_cost"`
	OutputCost         decimal.Decimal `json:"output_cost"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	ProcessingDuration time.Duration   `json:"-"`
	ProcessingMinutes  float64         `json:"processing_time_minutes"`
}

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// loadEncoder fetches the cl100k_base ranks on first use. tiktoken caches
// them under TIKTOKEN_CACHE_DIR; when they cannot be loaded the estimate
// falls back to the character approximation.
func loadEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			encoder = enc
		}
	})
	return encoder
}

// CountTokens counts cl100k_base tokens, or approximates one token per four
// characters when the encoding is unavailable.
func CountTokens(text string) int {
	if enc := loadEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

func approxTokens(text string) int {
	return len([]rune(text)) / 4
}

func Estimate(units []segment.WorkUnit, template, model string) Breakdown {
	if strings.TrimSpace(template) == "" {
		template = provider.DefaultTemplate
	}
	tmplTokens := CountTokens(template)

	var in, out int
	for _, u := range units {
		chunk := CountTokens(u.PromptText())
		in += tmplTokens + chunk
		out += int(float64(chunk) * outputRatio)
	}

	rate := provider.RateFor(model)
	thousand := decimal.NewFromInt(1000)
	inCost := rate.Input.Mul(decimal.NewFromInt(int64(in))).Div(thousand)
	outCost := rate.Output.Mul(decimal.NewFromInt(int64(out))).Div(thousand)

	perUnit, ok := secondsPerUnit[model]
	if !ok {
		perUnit = 5
	}
	dur := time.Duration(len(units)*perUnit) * time.Second
	return Breakdown{
		Model:              model,
		Units:              len(units),
		InputTokens:        in,
		OutputTokensEst:    out,
		InputCost:          inCost.Round(4),
		OutputCost:         outCost.Round(4),
		TotalCost:          inCost.Add(outCost).Round(4),
		ProcessingDuration: dur,
		ProcessingMinutes:  math.Round(dur.Minutes()*10) / 10,
	}
}

func (b Breakdown) NeedsConfirmation() bool {
	return b.TotalCost.GreaterThan(ConfirmThreshold)
}

func (b Breakdown) Format() string {
	var s strings.Builder
	fmt.Fprintf(&s, "model:         %s\n", b.Model)
	fmt.Fprintf(&s, "units:         %d\n", b.Units)
	fmt.Fprintf(&s, "input tokens:  %d ($%s)\n", b.InputTokens, b.InputCost.StringFixed(4))
	fmt.Fprintf(&s, "output tokens: ~%d ($%s)\n", b.OutputTokensEst, b.OutputCost.StringFixed(4))
	fmt.Fprintf(&s, "total:         $%s\n", b.TotalCost.StringFixed(4))
	fmt.Fprintf(&s, "est. time:     ~%.1f minutes\n", b.ProcessingDuration.Minutes())
	return s.String()
}
