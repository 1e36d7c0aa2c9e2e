package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

func TestAnthropic_CompleteParsesMessage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "Cleaned paragraph."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 80}
		}`))
	}))
	defer srv.Close()

	a, err := NewAnthropic("test-key", anthropicoption.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new anthropic: %v", err)
	}
	got, err := a.Complete(context.Background(), CompletionRequest{
		Model:       ModelHaiku,
		Prompt:      "clean this",
		MaxTokens:   256,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "Cleaned paragraph." || got.InputTokens != 120 || got.OutputTokens != 80 {
		t.Fatalf("unexpected completion: %+v", got)
	}
	if gotBody["model"] != ModelHaiku {
		t.Fatalf("request model mismatch: %v", gotBody["model"])
	}
}

func TestAnthropic_MapsStatusErrors(t *testing.T) {
	cases := map[int]Kind{
		http.StatusUnauthorized:       KindAuth,
		http.StatusTooManyRequests:    KindRetryable,
		http.StatusServiceUnavailable: KindRetryable,
		http.StatusBadRequest:         KindFatal,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"some_error","message":"nope"}}`))
		}))

		a, err := NewAnthropic("test-key", anthropicoption.WithBaseURL(srv.URL))
		if err != nil {
			srv.Close()
			t.Fatalf("new anthropic: %v", err)
		}
		_, err = a.Complete(context.Background(), CompletionRequest{Model: ModelHaiku, Prompt: "x", MaxTokens: 16})
		srv.Close()

		if kindOf(err) != want {
			t.Fatalf("status %d: expected %s, got %v", status, want, err)
		}
		var perr *Error
		if !errors.As(err, &perr) || perr.StatusCode != status || perr.Provider != NameAnthropic {
			t.Fatalf("status %d: unexpected error detail %+v", status, perr)
		}
	}
}

func TestDeepSeek_CompleteParsesChoice(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "deepseek-chat",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Tidy text."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 17, "total_tokens": 59}
		}`))
	}))
	defer srv.Close()

	d, err := NewDeepSeek("ds-key", srv.URL)
	if err != nil {
		t.Fatalf("new deepseek: %v", err)
	}
	got, err := d.Complete(context.Background(), CompletionRequest{Model: ModelDeepSeekChat, Prompt: "x", MaxTokens: 64})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "Tidy text." || got.InputTokens != 42 || got.OutputTokens != 17 {
		t.Fatalf("unexpected completion: %+v", got)
	}
	if auth != "Bearer ds-key" {
		t.Fatalf("expected bearer auth header, got %q", auth)
	}
}

func TestDeepSeek_MapsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Authentication Fails","type":"authentication_error"}}`))
	}))
	defer srv.Close()

	d, err := NewDeepSeek("bad", srv.URL)
	if err != nil {
		t.Fatalf("new deepseek: %v", err)
	}
	_, err = d.Complete(context.Background(), CompletionRequest{Model: ModelDeepSeekChat, Prompt: "x", MaxTokens: 8})
	if !IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d, err := NewDeepSeek("k", url)
	if err != nil {
		t.Fatalf("new deepseek: %v", err)
	}
	_, err = d.Complete(context.Background(), CompletionRequest{Model: ModelDeepSeekChat, Prompt: "x", MaxTokens: 8})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error for a refused connection, got %v", err)
	}
}
