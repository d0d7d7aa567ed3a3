package providers

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

	"loom/internal/config"
	"loom/internal/services"
)

const llmUserAgent = "Loom-Go/0.1.0"

// ChatMessage is one turn of a chat-completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Completion is the decoded result of one chat-completion call.
type Completion struct {
	Content string
	CostUSD float64
}

// LLMClient talks to an OpenAI-compatible chat-completion endpoint.
type LLMClient struct {
	apiKey     string
	endpoint   string
	model      string
	referer    string
	title      string
	backoff    time.Duration
	httpClient *http.Client
}

// LLMOption configures an LLMClient.
type LLMOption func(*LLMClient)

// WithLLMHTTPClient overrides the default HTTP client.
func WithLLMHTTPClient(client *http.Client) LLMOption {
	return func(c *LLMClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLLMBackoff overrides the retry backoff base.
func WithLLMBackoff(d time.Duration) LLMOption {
	return func(c *LLMClient) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// NewLLMClient builds a chat-completion client from configuration.
func NewLLMClient(cfg config.LLM, opts ...LLMOption) (*LLMClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm api key required")
	}
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		return nil, errors.New("llm base url required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &LLMClient{
		apiKey:     apiKey,
		endpoint:   endpoint,
		model:      strings.TrimSpace(cfg.Model),
		referer:    strings.TrimSpace(cfg.Referer),
		title:      strings.TrimSpace(cfg.Title),
		backoff:    llmRetryBackoff,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

const (
	llmRetryAttempts = 3
	llmRetryBackoff  = 2 * time.Second
)

// Complete sends a conversation and returns the first choice. Transient
// upstream failures (429, 5xx) are retried with backoff; moderation
// refusals surface as ErrContentRestricted so review UIs can show the
// distinct feedback kind.
func (c *LLMClient) Complete(ctx context.Context, messages []ChatMessage) (*Completion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: empty conversation", services.ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < llmRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		completion, err := c.completeOnce(ctx, messages)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !errors.Is(err, services.ErrTransient) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *LLMClient) completeOnce(ctx context.Context, messages []ChatMessage) (*Completion, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", llmUserAgent)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: execute chat request: %v", services.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read chat response: %v", services.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", services.ErrContentRestricted, trimBody(raw))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: chat endpoint returned %d", services.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: chat endpoint returned %d: %s", services.ErrProvider, resp.StatusCode, trimBody(raw))
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode chat response: %v", services.ErrProvider, err)
	}
	if payload.Error != nil {
		message := payload.Error.Message
		if isModerationRefusal(message) {
			return nil, fmt.Errorf("%w: %s", services.ErrContentRestricted, message)
		}
		return nil, fmt.Errorf("%w: %s", services.ErrProvider, message)
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("%w: chat response has no choices", services.ErrProvider)
	}

	choice := payload.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: completion stopped by content filter", services.ErrContentRestricted)
	}

	return &Completion{
		Content: choice.Message.Content,
		CostUSD: payload.Usage.Cost,
	}, nil
}

func isModerationRefusal(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "moderation") ||
		strings.Contains(lower, "content policy") ||
		strings.Contains(lower, "flagged")
}

func trimBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}
