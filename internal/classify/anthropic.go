package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultAnthropicURL   = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicMaxTokens    = 1024
)

// Anthropic classifies through the Claude Messages API.
type Anthropic struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewAnthropic creates an Anthropic provider. An empty baseURL targets the
// public API.
func NewAnthropic(apiKey, model, baseURL string, timeout time.Duration) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	return &Anthropic{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

// Classify sends one message to Claude.
func (a *Anthropic) Classify(ctx context.Context, text string) (Result, error) {
	raw, err := a.callAPI(ctx, Prompt(text))
	if err != nil {
		return Result{}, err
	}
	return parseResult(a.Name(), raw)
}

// ClassifyBatch sends several messages in one request.
func (a *Anthropic) ClassifyBatch(ctx context.Context, items []BatchItem) (map[string]Result, error) {
	raw, err := a.callAPI(ctx, batchPrompt(items))
	if err != nil {
		return nil, err
	}
	return parseBatch(a.Name(), raw)
}

// callAPI makes a single request to the Messages API and returns the joined
// text blocks of the answer.
func (a *Anthropic) callAPI(ctx context.Context, prompt string) (string, error) {
	reqBody := apiRequest{
		Model:       a.model,
		MaxTokens:   anthropicMaxTokens,
		System:      systemPrompt,
		Temperature: 0,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("calling Claude API: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", a.statusError(resp, respBody)
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ProviderError{
			Provider: a.Name(),
			Kind:     KindMalformed,
			Message:  fmt.Sprintf("decoding response: %v", err),
			Err:      err,
		}
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", &ProviderError{
			Provider: a.Name(),
			Kind:     KindMalformed,
			Message:  "response has no text content",
		}
	}
	return strings.Join(parts, ""), nil
}

// statusError maps a non-200 answer onto a ProviderError. The retry-after
// header is folded into the message so the retry classifier can honour it.
func (a *Anthropic) statusError(resp *http.Response, body []byte) error {
	msg := string(body)
	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	msg = fmt.Sprintf("API error (%d): %s", resp.StatusCode, msg)

	kind := KindTransient
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		kind = KindQuota
		if ra := resp.Header.Get("retry-after"); ra != "" {
			msg += fmt.Sprintf(" (retry after %s seconds)", ra)
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	}

	return &ProviderError{Provider: a.Name(), Kind: kind, Message: msg}
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Content    []apiContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
