package main

import (
	"strings"
	"testing"

	"loom/internal/config"
	"loom/internal/testsupport"
)

func TestLLMStatusLine(t *testing.T) {
	line := llmStatusLine(config.LLMConfig{}, false)
	if !strings.Contains(line, "Missing API key") {
		t.Fatalf("expected missing-key warning, got %q", line)
	}

	line = llmStatusLine(config.LLMConfig{APIKey: "sk-test", Model: "gpt-4o"}, false)
	if !strings.Contains(line, "Ready (model: gpt-4o)") {
		t.Fatalf("expected ready line with model, got %q", line)
	}
}

func TestProviderStatusLines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = "  sk-test  "
	cfg.LLM.Model = "gpt-4o"
	cfg.Speech.APIKey = ""
	cfg.Notifications.NtfyTopic = ""

	lines := providerStatusLines(cfg, false)
	if len(lines) != 6 {
		t.Fatalf("expected 6 provider lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Ready (model: gpt-4o)") {
		t.Fatalf("expected trimmed key to read ready, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "Not configured") {
		t.Fatalf("expected unconfigured speech provider, got %q", lines[1])
	}
	if !strings.Contains(lines[5], "Disabled (no ntfy topic)") {
		t.Fatalf("expected disabled notifications, got %q", lines[5])
	}
}
