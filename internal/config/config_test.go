package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/config"
)

func TestDefaultsValidateAfterNormalize(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config, got exists for %s", path)
	}
	if cfg.Workflow.PollInterval != 3 || cfg.Workflow.StaleTimeout != 60 {
		t.Fatalf("unexpected workflow defaults: %+v", cfg.Workflow)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not expanded: %s", cfg.Paths.DataDir)
	}
	if !strings.HasSuffix(cfg.DatabasePath(), "loom.db") {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath())
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[workflow]
poll_interval = 5
stale_timeout = 90

[llm]
api_key = "sk-test"
model = "test/model"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if cfg.Workflow.PollInterval != 5 || cfg.Workflow.StaleTimeout != 90 {
		t.Fatalf("workflow overrides not applied: %+v", cfg.Workflow)
	}
	llm := cfg.GetLLM()
	if llm.APIKey != "sk-test" || llm.Model != "test/model" {
		t.Fatalf("llm overrides not applied: %+v", llm)
	}
}

func TestValidateRejectsBadTimings(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.PollInterval = 60
	cfg.Workflow.StaleTimeout = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected stale_timeout validation error")
	}

	cfg = config.Default()
	cfg.Workflow.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected poll_interval validation error")
	}
}

func TestValidateRejectsBadLogging(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "yaml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected logging format validation error")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[workflow]") {
		t.Fatal("sample config missing workflow section")
	}
}

func TestEnvFallbackForLLMKey(t *testing.T) {
	t.Setenv("LOOM_LLM_API_KEY", "env-key")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetLLM().APIKey != "env-key" {
		t.Fatalf("expected env fallback, got %q", cfg.GetLLM().APIKey)
	}
}
