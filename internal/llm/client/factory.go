package client

import (
	"context"
	"fmt"
	"strings"
)

// New builds a chat client for one of the supported providers.
func New(ctx context.Context, provider, apiKey, modelName string) (*ChatClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAIClient(ctx, apiKey, modelName)
	case "anthropic":
		return NewClaudeClient(ctx, apiKey, modelName)
	case "gemini":
		return NewGeminiClient(ctx, apiKey, modelName)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
