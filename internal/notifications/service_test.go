package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/config"
	"loom/internal/notifications"
	"loom/internal/stages"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyReviewReady(context.Background(), "Example", stages.Script); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "review ready",
			send: func(svc notifications.Service) error {
				return svc.NotifyReviewReady(context.Background(), "First Light", stages.Script)
			},
			expectTitle:   "Loom - Review Ready",
			expectMessage: "Script is ready for review: First Light",
			expectTags:    "loom,review,script",
		},
		{
			name: "stage failed",
			send: func(svc notifications.Service) error {
				return svc.NotifyStageFailed(context.Background(), "First Light", stages.Images, errors.New("provider timeout"))
			},
			expectTitle:    "Loom - Stage Failed",
			expectMessage:  "Images failed for First Light: provider timeout",
			expectTags:     "loom,error,images",
			expectPriority: "high",
		},
		{
			name: "render completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyRenderCompleted(context.Background(), "First Light")
			},
			expectTitle:   "Loom - Render Complete",
			expectMessage: "Render finished: First Light",
			expectTags:    "loom,render,completed",
		},
		{
			name: "output completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyOutputCompleted(context.Background(), "First Light")
			},
			expectTitle:    "Loom - Complete",
			expectMessage:  "Ready to publish: First Light",
			expectTags:     "loom,pipeline,completed",
			expectPriority: "high",
		},
		{
			name: "pipeline reset",
			send: func(svc notifications.Service) error {
				return svc.NotifyPipelineReset(context.Background(), "First Light")
			},
			expectTitle:   "Loom - Pipeline Reset",
			expectMessage: "Reset to planning: First Light",
			expectTags:    "loom,reset",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Review = false
	cfg.Notifications.Render = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyReviewReady(ctx, "Example", stages.Writer); err != nil {
		t.Fatalf("expected nil for disabled review events, got %v", err)
	}
	if err := svc.NotifyRenderCompleted(ctx, "Example"); err != nil {
		t.Fatalf("expected nil for disabled render events, got %v", err)
	}
	if err := svc.NotifyStageFailed(ctx, "Example", stages.Audio, errors.New("boom")); err != nil {
		t.Fatalf("expected nil for disabled error events, got %v", err)
	}
}
