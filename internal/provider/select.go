package provider

import (
	"fmt"
	"strings"
)

type Credentials struct {
	AnthropicKey    string
	DeepSeekKey     string
	DeepSeekBaseURL string
}

// NewCompleter picks the adapter by provider name, inferring it from the
// model when name is empty.
func NewCompleter(name, model string, creds Credentials) (Completer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = ProviderFor(model)
	}
	switch name {
	case NameAnthropic:
		c, err := NewAnthropic(creds.AnthropicKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	case NameDeepSeek:
		c, err := NewDeepSeek(creds.DeepSeekKey, creds.DeepSeekBaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected %s or %s)", name, NameAnthropic, NameDeepSeek)
	}
}
