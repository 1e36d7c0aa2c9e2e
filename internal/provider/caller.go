// Package provider turns one work unit into one billable completion call.
package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/segment"
)

const (
	PlaceholderTitle    = "{{fileName}}"
	PlaceholderChunk    = "{{chunkText}}"
	PlaceholderLanguage = "{{outputLanguage}}"

	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.3
)

const DefaultTemplate = `You are cleaning an auto-generated transcript of the video "{{fileName}}".

Rewrite the new content into readable prose in {{outputLanguage}}:
- remove filler words, false starts and repetitions
- fix punctuation and obvious transcription errors
- keep every [HH:MM:SS] timestamp marker where it appears
- do not summarise, do not add information
- the context section is for continuity only, never repeat it

Return only the cleaned text.

{{chunkText}}`

type Request struct {
	Unit     segment.WorkUnit
	Template string
	Title    string
	Language string
}

// Caller performs exactly one logical call per unit. Retries happen inside.
type Caller interface {
	Call(ctx context.Context, req Request) (model.UnitResult, error)
}

type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Completer is the per-SDK capability. Implementations must return *Error
// for every failure.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Initial: 2 * time.Second, Max: 10 * time.Second}
}

type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Retry       RetryPolicy
}

type Client struct {
	completer Completer
	settings  Settings
}

func NewClient(c Completer, s Settings) *Client {
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Retry.MaxAttempts <= 0 {
		s.Retry = DefaultRetryPolicy()
	}
	return &Client{completer: c, settings: s}
}

func (c *Client) Model() string {
	return c.settings.Model
}

func (c *Client) Call(ctx context.Context, req Request) (model.UnitResult, error) {
	tmpl := req.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate
	}
	creq := CompletionRequest{
		Model:       c.settings.Model,
		Prompt:      RenderPrompt(tmpl, req.Title, req.Unit.PromptText(), req.Language),
		MaxTokens:   c.settings.MaxTokens,
		Temperature: c.settings.Temperature,
	}

	out, err := c.completeWithRetry(ctx, creq)
	if err != nil {
		return model.UnitResult{}, err
	}

	return model.UnitResult{
		UnitIndex:    req.Unit.Index,
		SourceText:   req.Unit.Text,
		OutputText:   out.Text,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Cost:         Cost(c.settings.Model, out.InputTokens, out.OutputTokens),
		Model:        c.settings.Model,
		Provider:     c.completer.Name(),
	}, nil
}

func (c *Client) completeWithRetry(ctx context.Context, req CompletionRequest) (Completion, error) {
	policy := c.settings.Retry
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.Initial
	exp.MaxInterval = policy.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	var (
		out      Completion
		attempts int
		last     *Error
	)
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		res, err := c.completer.Complete(ctx, req)
		if err == nil {
			out = res
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var perr *Error
		if !errors.As(err, &perr) {
			perr = transportError(c.completer.Name(), err)
		}
		last = perr
		if perr.Kind != KindRetryable {
			return backoff.Permanent(perr)
		}
		return perr
	}

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(policy.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Completion{}, ctxErr
		}
		if last == nil {
			return Completion{}, err
		}
		failed := *last
		failed.Attempts = attempts
		return Completion{}, &failed
	}
	return out, nil
}

// RenderPrompt fills the template placeholders. Placeholders absent from the
// template are ignored.
func RenderPrompt(template, title, chunk, language string) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	if strings.TrimSpace(language) == "" {
		language = "English"
	}
	r := strings.NewReplacer(
		PlaceholderTitle, title,
		PlaceholderLanguage, language,
		PlaceholderChunk, chunk,
	)
	return r.Replace(template)
}
