package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	EnvDeepSeekKey     = "DEEPSEEK_API_KEY"
	EnvDeepSeekBaseURL = "DEEPSEEK_BASE_URL"

	DefaultDeepSeekBaseURL = "https://api.deepseek.com"
)

// DeepSeek talks to the OpenAI-compatible chat completions endpoint.
type DeepSeek struct {
	client openai.Client
}

func NewDeepSeek(apiKey, baseURL string, opts ...option.RequestOption) (*DeepSeek, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing API key: set " + EnvDeepSeekKey)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultDeepSeekBaseURL
	}
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}, opts...)
	return &DeepSeek{client: openai.NewClient(all...)}, nil
}

func (d *DeepSeek) Name() string {
	return NameDeepSeek
}

func (d *DeepSeek) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Completion{}, statusError(NameDeepSeek, apiErr.StatusCode, apiErr.Error(), err)
		}
		return Completion{}, transportError(NameDeepSeek, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, &Error{Kind: KindFatal, Provider: NameDeepSeek, Message: "response contained no choices"}
	}
	return Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
