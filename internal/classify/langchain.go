package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain classifies through any langchaingo model. It backs the
// "openai" and "ollama" providers.
type LangChain struct {
	name    string
	llm     llms.Model
	timeout time.Duration
}

// NewOpenAI creates an OpenAI provider. baseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) (*LangChain, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &LangChain{name: "openai", llm: llm, timeout: timeout}, nil
}

// NewOllama creates a provider backed by a local Ollama server.
func NewOllama(model, serverURL string, timeout time.Duration) (*LangChain, error) {
	if model == "" {
		model = "llama3.1"
	}

	opts := []ollama.Option{
		ollama.WithModel(model),
		ollama.WithFormat("json"),
	}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &LangChain{name: "ollama", llm: llm, timeout: timeout}, nil
}

func (l *LangChain) Name() string { return l.name }

// Classify sends one message to the model.
func (l *LangChain) Classify(ctx context.Context, text string) (Result, error) {
	raw, err := l.generate(ctx, Prompt(text))
	if err != nil {
		return Result{}, err
	}
	return parseResult(l.name, raw)
}

// ClassifyBatch sends several messages in one request.
func (l *LangChain) ClassifyBatch(ctx context.Context, items []BatchItem) (map[string]Result, error) {
	raw, err := l.generate(ctx, batchPrompt(items))
	if err != nil {
		return nil, err
	}
	return parseBatch(l.name, raw)
}

func (l *LangChain) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := l.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", wrapError(l.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{
			Provider: l.name,
			Kind:     KindMalformed,
			Message:  "no response choices",
		}
	}
	return resp.Choices[0].Content, nil
}
