package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini classifies through the Google Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Classify sends one message to Gemini.
func (g *Gemini) Classify(ctx context.Context, text string) (Result, error) {
	raw, err := g.generate(ctx, Prompt(text))
	if err != nil {
		return Result{}, err
	}
	return parseResult(g.Name(), raw)
}

// ClassifyBatch sends several messages in one request.
func (g *Gemini) ClassifyBatch(ctx context.Context, items []BatchItem) (map[string]Result, error) {
	raw, err := g.generate(ctx, batchPrompt(items))
	if err != nil {
		return nil, err
	}
	return parseBatch(g.Name(), raw)
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return "", wrapError(g.Name(), err)
	}

	text := resp.Text()
	if text == "" {
		return "", &ProviderError{
			Provider: g.Name(),
			Kind:     KindMalformed,
			Message:  "empty response",
		}
	}
	return text, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
