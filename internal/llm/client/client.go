package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const claudeMaxTokens = 8192

// ChatClient wraps a provider chat model behind the two calls the evolution
// pipeline needs: a buffered completion and an ordered token stream.
type ChatClient struct {
	chatModel model.BaseChatModel
	provider  string
	modelName string
}

func NewOpenAIClient(ctx context.Context, key, modelName string) (*ChatClient, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey: key,
		Model:  modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return &ChatClient{chatModel: chatModel, provider: "openai", modelName: modelName}, nil
}

func NewClaudeClient(ctx context.Context, key, modelName string) (*ChatClient, error) {
	chatModel, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    key,
		Model:     modelName,
		MaxTokens: claudeMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create claude chat model: %w", err)
	}
	return &ChatClient{chatModel: chatModel, provider: "anthropic", modelName: modelName}, nil
}

func NewGeminiClient(ctx context.Context, key, modelName string) (*ChatClient, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: genaiClient,
		Model:  modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return &ChatClient{chatModel: chatModel, provider: "gemini", modelName: modelName}, nil
}

func (c *ChatClient) Provider() string { return c.provider }
func (c *ChatClient) Model() string    { return c.modelName }

// Complete runs a buffered request and returns the assistant text.
func (c *ChatClient) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	out, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return "", errors.New("no assistant content produced")
	}
	return content, nil
}

// StreamText opens a token stream and invokes onChunk for every piece of
// assistant content in arrival order. It returns the accumulated text once
// the provider signals end of stream, or the first receive error.
func (c *ChatClient) StreamText(ctx context.Context, messages []*schema.Message, onChunk func(text string) error) (string, error) {
	reader, err := c.chatModel.Stream(ctx, messages)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var full strings.Builder
	for {
		msg, recvErr := reader.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break
			}
			return "", recvErr
		}
		if msg == nil || msg.Role != schema.Assistant || msg.Content == "" {
			continue
		}
		full.WriteString(msg.Content)
		if onChunk != nil {
			if err := onChunk(msg.Content); err != nil {
				return "", err
			}
		}
	}

	if full.Len() == 0 {
		return "", errors.New("no assistant content produced during streaming")
	}
	return full.String(), nil
}
