package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// New dispatches on the configured provider name, mirroring the
// selected_module.LLM configuration key's accepted values.
func New(provider, apiKey, apiURL, systemPrompt string, logger *zap.Logger) (Provider, error) {
	switch provider {
	case "openai", "":
		if apiURL == "" {
			apiURL = "https://api.openai.com/v1"
		}
		return NewOpenAI(apiKey, apiURL, systemPrompt, logger), nil
	case "ollama":
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOllama(apiURL, systemPrompt, logger), nil
	case "coze":
		return NewCoze(apiKey, apiURL, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", provider)
	}
}
