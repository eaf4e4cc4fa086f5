package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAIEngine.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server; empty uses the public API.
	BaseURL string
}

// OpenAIEngine talks to an OpenAI-compatible API through langchaingo.
type OpenAIEngine struct {
	llm llms.Model

	// newEmbedder builds an embedder for one embedding model.
	newEmbedder func(model string) (embeddings.Embedder, error)

	mu        sync.Mutex
	embedders map[string]embeddings.Embedder
}

var _ Engine = (*OpenAIEngine)(nil)

// NewOpenAIEngine creates an engine for the given credentials.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai engine: missing API key")
	}
	opts := func(extra ...openai.Option) []openai.Option {
		o := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			o = append(o, openai.WithBaseURL(cfg.BaseURL))
		}
		return append(o, extra...)
	}

	llm, err := openai.New(opts()...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	return newOpenAIEngine(llm, func(model string) (embeddings.Embedder, error) {
		client, err := openai.New(opts(openai.WithEmbeddingModel(model))...)
		if err != nil {
			return nil, fmt.Errorf("creating openai embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	}), nil
}

func newOpenAIEngine(llm llms.Model, newEmbedder func(string) (embeddings.Embedder, error)) *OpenAIEngine {
	return &OpenAIEngine{
		llm:         llm,
		newEmbedder: newEmbedder,
		embedders:   make(map[string]embeddings.Embedder),
	}
}

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func callOptions(model string, opts ChatOptions) []llms.CallOption {
	co := []llms.CallOption{llms.WithModel(model)}
	if opts.Temperature != nil {
		co = append(co, llms.WithTemperature(*opts.Temperature))
	}
	if opts.JSON || opts.Schema != nil {
		co = append(co, llms.WithJSONMode())
	}
	return co
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	resp, err := e.llm.GenerateContent(ctx, toMessageContent(messages), callOptions(model, opts)...)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat: empty response")
	}
	return resp.Choices[0].Content, nil
}

func (e *OpenAIEngine) ChatStream(ctx context.Context, model string, messages []Message, opts ChatOptions, onChunk func(string) error) error {
	co := append(callOptions(model, opts), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onChunk(string(chunk))
	}))
	if _, err := e.llm.GenerateContent(ctx, toMessageContent(messages), co...); err != nil {
		return fmt.Errorf("chat stream request: %w", err)
	}
	return nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	emb, err := e.embedder(model)
	if err != nil {
		return nil, err
	}
	vec, err := emb.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	return vec, nil
}

func (e *OpenAIEngine) embedder(model string) (embeddings.Embedder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emb, ok := e.embedders[model]; ok {
		return emb, nil
	}
	emb, err := e.newEmbedder(model)
	if err != nil {
		return nil, err
	}
	e.embedders[model] = emb
	return emb, nil
}

// IsRunning always reports true: a hosted API has no local process to probe.
func (e *OpenAIEngine) IsRunning(context.Context) bool { return true }
