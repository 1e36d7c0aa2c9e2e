package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const EnvAnthropicKey = "ANTHROPIC_API_KEY"

type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic builds a Messages API completer. The SDK's own retries are
// disabled so the caller's policy is the only one in effect.
func NewAnthropic(apiKey string, opts ...option.RequestOption) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing API key: set " + EnvAnthropicKey)
	}
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Anthropic{client: anthropic.NewClient(all...)}, nil
}

func (a *Anthropic) Name() string {
	return NameAnthropic
}

func (a *Anthropic) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Completion{}, statusError(NameAnthropic, apiErr.StatusCode, apiErr.Error(), err)
		}
		return Completion{}, transportError(NameAnthropic, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, &Error{Kind: KindFatal, Provider: NameAnthropic, Message: "response contained no text content"}
	}
	return Completion{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
