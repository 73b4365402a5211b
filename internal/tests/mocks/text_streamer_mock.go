package mocks

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// TextStreamerMock stands in for the chat client. The default StreamText
// behavior emits Chunks one at a time and returns their concatenation,
// matching how the real client accumulates a reply.
type TextStreamerMock struct {
	Chunks       []string
	CompleteFunc func(ctx context.Context, messages []*schema.Message) (string, error)
	StreamFunc   func(ctx context.Context, messages []*schema.Message, onChunk func(text string) error) (string, error)
}

func (m *TextStreamerMock) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return "mock completion", nil
}

func (m *TextStreamerMock) StreamText(ctx context.Context, messages []*schema.Message, onChunk func(text string) error) (string, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages, onChunk)
	}
	var full string
	for _, chunk := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return full, err
		}
		if err := onChunk(chunk); err != nil {
			return full, err
		}
		full += chunk
	}
	return full, nil
}
