package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

// MediaRequest describes one media generation call. Fields not relevant
// to a given provider kind are left zero.
type MediaRequest struct {
	Prompt     string  `json:"prompt"`
	Seed       int64   `json:"seed,omitempty"`
	VoiceID    string  `json:"voice_id,omitempty"`
	SpeechRate float64 `json:"speech_rate,omitempty"`
	Language   string  `json:"language,omitempty"`
	Style      string  `json:"style,omitempty"`
	// ImagePath points the motion provider at the still to animate.
	ImagePath string `json:"image_path,omitempty"`
	// DurationSeconds bounds music and motion generation length.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

// MediaResult carries generated bytes plus billing metadata.
type MediaResult struct {
	Data    []byte
	CostUSD float64
}

// MediaClient talks to one HTTP media generation service. The same
// client shape serves speech, image, motion, and music providers since
// they all accept a JSON request and return the generated file.
type MediaClient struct {
	kind       string
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewMediaClient builds a client for one provider kind from its config
// section. Returns nil when the section is unconfigured so callers can
// treat absent providers as unavailable stages.
func NewMediaClient(kind string, cfg config.MediaProvider) *MediaClient {
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &MediaClient{
		kind:       kind,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   endpoint,
		model:      strings.TrimSpace(cfg.Model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Kind names the provider slot this client fills.
func (c *MediaClient) Kind() string {
	if c == nil {
		return ""
	}
	return c.kind
}

// Generate performs one generation call and returns the produced bytes.
func (c *MediaClient) Generate(ctx context.Context, req MediaRequest) (*MediaResult, error) {
	if c == nil {
		return nil, errors.New("media provider not configured")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", services.ErrValidation)
	}

	payload := struct {
		Model string `json:"model,omitempty"`
		MediaRequest
	}{Model: c.model, MediaRequest: req}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", c.kind, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.kind, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", llmUserAgent)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: execute %s request: %v", services.ErrTransient, c.kind, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: %s provider: %s", services.ErrContentRestricted, c.kind, trimBody(raw))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s provider returned %d", services.ErrTransient, c.kind, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: %s provider returned %d: %s", services.ErrProvider, c.kind, resp.StatusCode, trimBody(raw))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", services.ErrTransient, c.kind, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s provider returned empty body", services.ErrProvider, c.kind)
	}

	result := &MediaResult{Data: data}
	if cost := resp.Header.Get("X-Generation-Cost"); cost != "" {
		if parsed, err := strconv.ParseFloat(cost, 64); err == nil {
			result.CostUSD = parsed
		}
	}
	return result, nil
}
