package provider

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	NameAnthropic = "anthropic"
	NameDeepSeek  = "deepseek"

	ModelSonnet           = "claude-3-5-sonnet-20241022"
	ModelHaiku            = "claude-3-5-haiku-20241022"
	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"

	DefaultModel = ModelSonnet
)

// Rate is the price in dollars per 1K tokens.
type Rate struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

var rates = map[string]Rate{
	ModelSonnet:           rate("0.003", "0.015"),
	ModelHaiku:            rate("0.001", "0.005"),
	ModelDeepSeekChat:     rate("0.00027", "0.0011"),
	ModelDeepSeekReasoner: rate("0.00056", "0.0022"),
}

var thousand = decimal.NewFromInt(1000)

func rate(in, out string) Rate {
	return Rate{Input: decimal.RequireFromString(in), Output: decimal.RequireFromString(out)}
}

// RateFor returns the model's rate; unknown models are billed at the default
// model's rate so estimates err on the expensive side.
func RateFor(model string) Rate {
	if r, ok := rates[model]; ok {
		return r
	}
	return rates[DefaultModel]
}

func KnownModel(model string) bool {
	_, ok := rates[model]
	return ok
}

func Models() []string {
	out := make([]string, 0, len(rates))
	for m := range rates {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Cost prices one call, rounded to 6 decimal places.
func Cost(model string, inputTokens, outputTokens int) decimal.Decimal {
	r := RateFor(model)
	in := r.Input.Mul(decimal.NewFromInt(int64(inputTokens))).Div(thousand)
	out := r.Output.Mul(decimal.NewFromInt(int64(outputTokens))).Div(thousand)
	return in.Add(out).Round(6)
}

// ProviderFor infers the provider from the model name.
func ProviderFor(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "deepseek-") {
		return NameDeepSeek
	}
	return NameAnthropic
}
