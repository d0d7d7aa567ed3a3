package providers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/config"
	"loom/internal/output"
	"loom/internal/providers"
	"loom/internal/stages"
)

func newArtifacts(t *testing.T) *providers.ArtifactStore {
	t.Helper()
	store, err := providers.NewArtifactStore(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}
	return store
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := `{"choices": [{"message": {"content": ` + jsonString(content) + `}}], "usage": {"cost": 0.01}}`
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)
	return server
}

func jsonString(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + replacer.Replace(s) + `"`
}

func registryWithLLM(t *testing.T, serverURL string) *providers.Registry {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.APIKey = "test"
	cfg.LLM.BaseURL = serverURL
	registry, err := providers.NewRegistry(&cfg, newArtifacts(t))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return registry
}

func TestRegistryOmitsUnconfiguredProviders(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	registry, err := providers.NewRegistry(&cfg, newArtifacts(t))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if _, ok := registry.For(stages.StoryOutline); ok {
		t.Fatal("expected no outline producer without an llm key")
	}
	if _, ok := registry.For(stages.Images); ok {
		t.Fatal("expected no image producer without an image provider")
	}
	if _, ok := registry.For(stages.Render); !ok {
		t.Fatal("expected render producer to always be present")
	}
}

func TestOutlineProducerStoresPayload(t *testing.T) {
	server := chatServer(t, "```json\n{\"acts\": 3}\n```")
	registry := registryWithLLM(t, server.URL)

	producer, ok := registry.For(stages.StoryOutline)
	if !ok {
		t.Fatal("expected outline producer")
	}
	result, err := producer.Produce(context.Background(), providers.Request{
		Output: &output.Output{ID: "out-1", Title: "A Story"},
	})
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if result.ProductKind != output.ProductStoryOutline {
		t.Fatalf("unexpected product kind %s", result.ProductKind)
	}
	if result.Payload != `{"acts": 3}` {
		t.Fatalf("expected code fence stripped, got %q", result.Payload)
	}
	if result.CostUSD != 0.01 {
		t.Fatalf("expected cost recorded, got %v", result.CostUSD)
	}
}

func TestScriptProducerParsesScenes(t *testing.T) {
	server := chatServer(t, `[{"narration": "Opening", "visual_description": "A street"}, {"narration": "Reveal"}]`)
	registry := registryWithLLM(t, server.URL)

	producer, ok := registry.For(stages.Script)
	if !ok {
		t.Fatal("expected script producer")
	}
	result, err := producer.Produce(context.Background(), providers.Request{
		Output: &output.Output{ID: "out-1", Title: "A Story"},
		Prose:  "Once upon a time...",
	})
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if len(result.Scenes) != 2 || result.Scenes[0].Narration != "Opening" || result.Scenes[0].VisualDescription != "A street" {
		t.Fatalf("unexpected scenes: %#v", result.Scenes)
	}
}

func TestScriptProducerRequiresProse(t *testing.T) {
	server := chatServer(t, `[]`)
	registry := registryWithLLM(t, server.URL)

	producer, _ := registry.For(stages.Script)
	if _, err := producer.Produce(context.Background(), providers.Request{
		Output: &output.Output{ID: "out-1", Title: "A Story"},
	}); err == nil {
		t.Fatal("expected error without prose")
	}
}

func TestImagesProducerSavesPerSceneArtifacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Generation-Cost", "0.02")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	artifacts := newArtifacts(t)
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	cfg.Image.BaseURL = server.URL
	registry, err := providers.NewRegistry(&cfg, artifacts)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	producer, ok := registry.For(stages.Images)
	if !ok {
		t.Fatal("expected image producer")
	}
	result, err := producer.Produce(context.Background(), providers.Request{
		Output: &output.Output{ID: "out-1", Title: "A Story"},
		Scenes: []output.Scene{
			{ID: "scene-a", Idx: 0, Narration: "Opening", VisualDescription: "A street"},
			{ID: "scene-b", Idx: 1, Narration: "Reveal"},
		},
	})
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if len(result.SceneAssets) != 2 {
		t.Fatalf("expected assets for both scenes, got %d", len(result.SceneAssets))
	}
	if result.CostUSD != 0.04 {
		t.Fatalf("expected summed cost 0.04, got %v", result.CostUSD)
	}
	assets := result.SceneAssets["scene-a"]
	if assets.ImagePath == nil {
		t.Fatal("expected image path for scene-a")
	}
	if _, err := os.Stat(*assets.ImagePath); err != nil {
		t.Fatalf("expected artifact on disk: %v", err)
	}
}

func TestRenderProducerBuildsManifest(t *testing.T) {
	artifacts := newArtifacts(t)
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	registry, err := providers.NewRegistry(&cfg, artifacts)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	producer, _ := registry.For(stages.Render)
	result, err := producer.Produce(context.Background(), providers.Request{
		Output: &output.Output{ID: "out-1", Title: "A Story", BGMPath: "/tmp/bgm.mp3"},
		Scenes: []output.Scene{
			{ID: "scene-a", Idx: 0, Narration: "Opening", VideoPath: "/tmp/a.mp4", AudioPath: "/tmp/a.mp3"},
		},
	})
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if result.RenderPath == "" {
		t.Fatal("expected render path")
	}
	if !strings.Contains(result.Payload, "/tmp/a.mp4") || !strings.Contains(result.Payload, "/tmp/bgm.mp3") {
		t.Fatalf("manifest missing inputs: %s", result.Payload)
	}
}

func TestRenderProducerRejectsIncompleteScenes(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	registry, err := providers.NewRegistry(&cfg, newArtifacts(t))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	producer, _ := registry.For(stages.Render)
	if _, err := producer.Produce(context.Background(), providers.Request{
		Output: &output.Output{ID: "out-1", Title: "A Story"},
		Scenes: []output.Scene{{ID: "scene-a", Idx: 0, Narration: "Opening"}},
	}); err == nil {
		t.Fatal("expected error for scene without video and audio")
	}
}

func TestArtifactStoreSaveAndRemove(t *testing.T) {
	store := newArtifacts(t)

	path, err := store.Save("out-1", "images", "scene-000.png", []byte("data"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("unexpected artifact content %q", data)
	}

	if err := store.Remove("out-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected artifact removed, got %v", err)
	}
}
