package engine

import (
	"context"

	"github.com/kalambet/colab/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

var (
	_ Engine       = (*OllamaEngine)(nil)
	_ ModelManager = (*OllamaEngine)(nil)
)

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func toOllama(messages []Message, opts ChatOptions) ([]ollama.Message, ollama.ChatOptions) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	o := ollama.ChatOptions{Temperature: opts.Temperature}
	switch {
	case opts.Schema != nil:
		o.Format = opts.Schema
	case opts.JSON:
		o.Format = "json"
	}
	return msgs, o
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	msgs, o := toOllama(messages, opts)
	return e.client.Chat(ctx, model, msgs, o)
}

func (e *OllamaEngine) ChatStream(ctx context.Context, model string, messages []Message, opts ChatOptions, onChunk func(string) error) error {
	msgs, o := toOllama(messages, opts)
	return e.client.ChatStream(ctx, model, msgs, o, onChunk)
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
