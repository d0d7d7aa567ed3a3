package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/stages"
)

const userAgent = "Loom-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyReviewReady(ctx context.Context, title string, stage stages.Stage) error
	NotifyStageFailed(ctx context.Context, title string, stage stages.Stage, failure error) error
	NotifyRenderCompleted(ctx context.Context, title string) error
	NotifyOutputCompleted(ctx context.Context, title string) error
	NotifyPipelineReset(ctx context.Context, title string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		reviewEvents: cfg.Notifications.Review,
		renderEvents: cfg.Notifications.Render,
		errorEvents:  cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	reviewEvents bool
	renderEvents bool
	errorEvents  bool
}

func (n *ntfyService) NotifyReviewReady(ctx context.Context, title string, stage stages.Stage) error {
	if !n.reviewEvents {
		return nil
	}
	data := payload{
		title:   "Loom - Review Ready",
		message: fmt.Sprintf("%s is ready for review: %s", stages.Label(stage), strings.TrimSpace(title)),
		tags:    []string{"loom", "review", string(stage)},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageFailed(ctx context.Context, title string, stage stages.Stage, failure error) error {
	if !n.errorEvents {
		return nil
	}
	message := fmt.Sprintf("%s failed for %s", stages.Label(stage), strings.TrimSpace(title))
	if failure != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(failure.Error()))
	}
	data := payload{
		title:    "Loom - Stage Failed",
		message:  message,
		tags:     []string{"loom", "error", string(stage)},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRenderCompleted(ctx context.Context, title string) error {
	if !n.renderEvents {
		return nil
	}
	data := payload{
		title:   "Loom - Render Complete",
		message: fmt.Sprintf("Render finished: %s", strings.TrimSpace(title)),
		tags:    []string{"loom", "render", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOutputCompleted(ctx context.Context, title string) error {
	if !n.renderEvents {
		return nil
	}
	data := payload{
		title:    "Loom - Complete",
		message:  fmt.Sprintf("Ready to publish: %s", strings.TrimSpace(title)),
		tags:     []string{"loom", "pipeline", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPipelineReset(ctx context.Context, title string) error {
	data := payload{
		title:   "Loom - Pipeline Reset",
		message: fmt.Sprintf("Reset to planning: %s", strings.TrimSpace(title)),
		tags:    []string{"loom", "reset"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Loom - Test",
		message:  "Notification system test",
		tags:     []string{"loom", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NewNoop returns a Service that drops every event.
func NewNoop() Service { return noopService{} }

type noopService struct{}

func (noopService) NotifyReviewReady(context.Context, string, stages.Stage) error        { return nil }
func (noopService) NotifyStageFailed(context.Context, string, stages.Stage, error) error { return nil }
func (noopService) NotifyRenderCompleted(context.Context, string) error                  { return nil }
func (noopService) NotifyOutputCompleted(context.Context, string) error                  { return nil }
func (noopService) NotifyPipelineReset(context.Context, string) error                    { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
