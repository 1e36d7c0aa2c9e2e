package provider

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCost_UsesModelRates(t *testing.T) {
	cases := []struct {
		model string
		in    int
		out   int
		want  string
	}{
		{ModelSonnet, 1000, 500, "0.0105"},
		{ModelHaiku, 2000, 1000, "0.007"},
		{ModelDeepSeekChat, 1234, 567, "0.000957"},
		{ModelDeepSeekReasoner, 1000, 1000, "0.00276"},
		{"some-future-model", 1000, 1000, "0.018"},
	}
	for _, tc := range cases {
		got := Cost(tc.model, tc.in, tc.out)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s: cost mismatch got %s want %s", tc.model, got, tc.want)
		}
	}
}

func TestProviderFor(t *testing.T) {
	if got := ProviderFor("deepseek-chat"); got != NameDeepSeek {
		t.Fatalf("expected deepseek, got %s", got)
	}
	if got := ProviderFor(ModelHaiku); got != NameAnthropic {
		t.Fatalf("expected anthropic, got %s", got)
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusUnauthorized:        KindAuth,
		http.StatusForbidden:           KindAuth,
		http.StatusTooManyRequests:     KindRetryable,
		http.StatusRequestTimeout:      KindRetryable,
		http.StatusInternalServerError: KindRetryable,
		529:                            KindRetryable,
		http.StatusBadRequest:          KindFatal,
		http.StatusNotFound:            KindFatal,
	}
	for code, want := range cases {
		if got := KindForStatus(code); got != want {
			t.Fatalf("status %d: got %s want %s", code, got, want)
		}
	}
}

func TestNewCompleter_MissingKeyNamesVariable(t *testing.T) {
	_, err := NewCompleter("", ModelSonnet, Credentials{})
	if err == nil || err.Error() != "missing API key: set "+EnvAnthropicKey {
		t.Fatalf("expected anthropic key error, got %v", err)
	}
	_, err = NewCompleter("", ModelDeepSeekChat, Credentials{AnthropicKey: "x"})
	if err == nil || err.Error() != "missing API key: set "+EnvDeepSeekKey {
		t.Fatalf("expected deepseek key error, got %v", err)
	}
	if _, err := NewCompleter("bogus", ModelSonnet, Credentials{}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
