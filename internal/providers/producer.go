package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"loom/internal/config"
	"loom/internal/output"
	"loom/internal/services"
	"loom/internal/stages"
)

// Request carries everything a producer may need about the output being
// worked on. The executor loads it in one pass before dispatching.
type Request struct {
	Output *output.Output
	Scenes []output.Scene
	// Outline and Prose are the upstream text products when present.
	Outline string
	Prose   string
	// Feedback is reviewer feedback from a rejected prior run, passed
	// back to the provider to steer regeneration.
	Feedback string
}

// Result is what a producer hands back for persistence. Only the fields
// relevant to the stage are set; the executor applies them atomically.
type Result struct {
	ProductKind output.ProductKind
	Payload     string
	// Scenes replaces the output's scene list when non-nil.
	Scenes []output.Scene
	// SceneAssets maps scene IDs to artifact path updates.
	SceneAssets map[string]output.SceneAssets
	BGMPath     string
	RenderPath  string
	Provider    string
	CostUSD     float64
}

// Producer generates the content of one pipeline stage.
type Producer interface {
	Produce(ctx context.Context, req Request) (*Result, error)
}

// Registry maps stages to their producers based on which providers are
// configured. Stages whose provider is missing have no producer and
// cannot be started.
type Registry struct {
	producers map[stages.Stage]Producer
}

// NewRegistry wires producers from configuration. The LLM client backs
// the four text stages; each media client backs its asset stage; the
// render stage needs only the artifact store.
func NewRegistry(cfg *config.Config, artifacts *ArtifactStore) (*Registry, error) {
	registry := &Registry{producers: make(map[stages.Stage]Producer)}

	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		llm, err := NewLLMClient(cfg.LLM)
		if err != nil {
			return nil, err
		}
		registry.producers[stages.StoryOutline] = &outlineProducer{llm: llm}
		registry.producers[stages.Writer] = &writerProducer{llm: llm}
		registry.producers[stages.Script] = &scriptProducer{llm: llm}
		registry.producers[stages.RetentionQA] = &retentionProducer{llm: llm}
	}

	if client := NewMediaClient("image", cfg.Image); client != nil {
		registry.producers[stages.Images] = &imagesProducer{client: client, artifacts: artifacts}
	}
	if client := NewMediaClient("speech", cfg.Speech); client != nil {
		registry.producers[stages.Audio] = &audioProducer{client: client, artifacts: artifacts}
	}
	if client := NewMediaClient("music", cfg.Music); client != nil {
		registry.producers[stages.BGM] = &bgmProducer{client: client, artifacts: artifacts}
	}
	if client := NewMediaClient("motion", cfg.Motion); client != nil {
		registry.producers[stages.Motion] = &motionProducer{client: client, artifacts: artifacts}
	}

	registry.producers[stages.Render] = &renderProducer{artifacts: artifacts}

	return registry, nil
}

// For returns the producer registered for a stage.
func (r *Registry) For(stage stages.Stage) (Producer, bool) {
	producer, ok := r.producers[stage]
	return producer, ok
}

// Register overrides the producer for a stage. Tests use this to swap
// in fakes without touching provider configuration.
func (r *Registry) Register(stage stages.Stage, producer Producer) {
	r.producers[stage] = producer
}

const llmProviderName = "llm"

type outlineProducer struct {
	llm *LLMClient
}

func (p *outlineProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	prompt := &strings.Builder{}
	fmt.Fprintf(prompt, "Create a story outline for a video titled %q.\n", req.Output.Title)
	if req.Output.ScriptStyle != "" {
		fmt.Fprintf(prompt, "Style: %s.\n", req.Output.ScriptStyle)
	}
	if req.Output.MustInclude != "" {
		fmt.Fprintf(prompt, "Must include: %s.\n", req.Output.MustInclude)
	}
	if req.Output.MustExclude != "" {
		fmt.Fprintf(prompt, "Must not include: %s.\n", req.Output.MustExclude)
	}
	if req.Feedback != "" {
		fmt.Fprintf(prompt, "Reviewer feedback on the previous attempt: %s.\n", req.Feedback)
	}
	prompt.WriteString("Respond with a JSON object describing acts and beats.")

	completion, err := p.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: "You outline short-form narrative videos."},
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		ProductKind: output.ProductStoryOutline,
		Payload:     stripCodeFence(completion.Content),
		Provider:    llmProviderName,
		CostUSD:     completion.CostUSD,
	}, nil
}

type writerProducer struct {
	llm *LLMClient
}

func (p *writerProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Outline) == "" {
		return nil, fmt.Errorf("%w: writer needs an approved outline", services.ErrValidation)
	}
	prompt := &strings.Builder{}
	fmt.Fprintf(prompt, "Write the full narration prose for a video titled %q based on this outline:\n%s\n", req.Output.Title, req.Outline)
	if req.Output.Language != "" {
		fmt.Fprintf(prompt, "Write in language: %s.\n", req.Output.Language)
	}
	if req.Feedback != "" {
		fmt.Fprintf(prompt, "Reviewer feedback on the previous draft: %s.\n", req.Feedback)
	}

	completion, err := p.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: "You write narration prose for video production."},
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		ProductKind: output.ProductWriterProse,
		Payload:     completion.Content,
		Provider:    llmProviderName,
		CostUSD:     completion.CostUSD,
	}, nil
}

type scriptProducer struct {
	llm *LLMClient
}

type sceneDraft struct {
	Narration         string `json:"narration"`
	VisualDescription string `json:"visual_description"`
	AudioDescription  string `json:"audio_description"`
}

func (p *scriptProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prose) == "" {
		return nil, fmt.Errorf("%w: script needs writer prose", services.ErrValidation)
	}
	prompt := &strings.Builder{}
	fmt.Fprintf(prompt, "Split this narration into scenes:\n%s\n", req.Prose)
	if req.Output.VisualStyle != "" {
		fmt.Fprintf(prompt, "Visual style for descriptions: %s.\n", req.Output.VisualStyle)
	}
	if req.Feedback != "" {
		fmt.Fprintf(prompt, "Reviewer feedback on the previous script: %s.\n", req.Feedback)
	}
	prompt.WriteString(`Respond with a JSON array: [{"narration":"...","visual_description":"...","audio_description":"..."}]`)

	completion, err := p.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: "You convert narration prose into per-scene video scripts."},
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return nil, err
	}

	var drafts []sceneDraft
	if err := json.Unmarshal([]byte(stripCodeFence(completion.Content)), &drafts); err != nil {
		return nil, fmt.Errorf("%w: parse scene list: %v", services.ErrProvider, err)
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: provider returned no scenes", services.ErrProvider)
	}

	scenes := make([]output.Scene, len(drafts))
	for i, draft := range drafts {
		if strings.TrimSpace(draft.Narration) == "" {
			return nil, fmt.Errorf("%w: scene %d has no narration", services.ErrProvider, i)
		}
		scenes[i] = output.Scene{
			Narration:         draft.Narration,
			VisualDescription: draft.VisualDescription,
			AudioDescription:  draft.AudioDescription,
		}
	}

	return &Result{
		Scenes:   scenes,
		Provider: llmProviderName,
		CostUSD:  completion.CostUSD,
	}, nil
}

type retentionProducer struct {
	llm *LLMClient
}

func (p *retentionProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("%w: retention review needs scenes", services.ErrValidation)
	}
	prompt := &strings.Builder{}
	prompt.WriteString("Review these scenes for viewer retention. Flag weak hooks and pacing dips.\n")
	for _, scene := range req.Scenes {
		fmt.Fprintf(prompt, "Scene %d: %s\n", scene.Idx+1, scene.Narration)
	}
	prompt.WriteString("Respond with a JSON object of findings keyed by scene index.")

	completion, err := p.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: "You are a retention analyst for short-form video."},
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		ProductKind: output.ProductRetentionQA,
		Payload:     stripCodeFence(completion.Content),
		Provider:    llmProviderName,
		CostUSD:     completion.CostUSD,
	}, nil
}

type imagesProducer struct {
	client    *MediaClient
	artifacts *ArtifactStore
}

func (p *imagesProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("%w: image generation needs scenes", services.ErrValidation)
	}
	result := &Result{
		SceneAssets: make(map[string]output.SceneAssets, len(req.Scenes)),
		Provider:    p.client.Kind(),
	}
	for _, scene := range req.Scenes {
		prompt := scene.VisualDescription
		if prompt == "" {
			prompt = scene.Narration
		}
		media, err := p.client.Generate(ctx, MediaRequest{
			Prompt: prompt,
			Seed:   req.Output.Seed,
			Style:  req.Output.VisualStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", scene.Idx, err)
		}
		path, err := p.artifacts.Save(req.Output.ID, "images", fmt.Sprintf("scene-%03d.png", scene.Idx), media.Data)
		if err != nil {
			return nil, err
		}
		pathCopy := path
		result.SceneAssets[scene.ID] = output.SceneAssets{ImagePath: &pathCopy}
		result.CostUSD += media.CostUSD
	}
	return result, nil
}

type audioProducer struct {
	client    *MediaClient
	artifacts *ArtifactStore
}

func (p *audioProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("%w: narration synthesis needs scenes", services.ErrValidation)
	}
	result := &Result{
		SceneAssets: make(map[string]output.SceneAssets, len(req.Scenes)),
		Provider:    p.client.Kind(),
	}
	for _, scene := range req.Scenes {
		media, err := p.client.Generate(ctx, MediaRequest{
			Prompt:     scene.Narration,
			VoiceID:    req.Output.VoiceID,
			SpeechRate: req.Output.SpeechRate,
			Language:   req.Output.Language,
		})
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", scene.Idx, err)
		}
		path, err := p.artifacts.Save(req.Output.ID, "audio", fmt.Sprintf("scene-%03d.mp3", scene.Idx), media.Data)
		if err != nil {
			return nil, err
		}
		pathCopy := path
		result.SceneAssets[scene.ID] = output.SceneAssets{AudioPath: &pathCopy}
		result.CostUSD += media.CostUSD
	}
	return result, nil
}

type bgmProducer struct {
	client    *MediaClient
	artifacts *ArtifactStore
}

func (p *bgmProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	prompt := fmt.Sprintf("Background music for a video titled %q.", req.Output.Title)
	if req.Output.VisualStyle != "" {
		prompt += " Mood: " + req.Output.VisualStyle + "."
	}
	if req.Feedback != "" {
		prompt += " Reviewer feedback: " + req.Feedback + "."
	}
	media, err := p.client.Generate(ctx, MediaRequest{
		Prompt:          prompt,
		Seed:            req.Output.Seed,
		DurationSeconds: 30 * len(req.Scenes),
	})
	if err != nil {
		return nil, err
	}
	path, err := p.artifacts.Save(req.Output.ID, "music", "bgm.mp3", media.Data)
	if err != nil {
		return nil, err
	}
	return &Result{
		BGMPath:  path,
		Provider: p.client.Kind(),
		CostUSD:  media.CostUSD,
	}, nil
}

type motionProducer struct {
	client    *MediaClient
	artifacts *ArtifactStore
}

func (p *motionProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("%w: motion generation needs scenes", services.ErrValidation)
	}
	result := &Result{
		SceneAssets: make(map[string]output.SceneAssets, len(req.Scenes)),
		Provider:    p.client.Kind(),
	}
	for _, scene := range req.Scenes {
		if scene.ImagePath == "" {
			return nil, fmt.Errorf("%w: scene %d has no image to animate", services.ErrValidation, scene.Idx)
		}
		prompt := scene.VisualDescription
		if prompt == "" {
			prompt = scene.Narration
		}
		media, err := p.client.Generate(ctx, MediaRequest{
			Prompt:    prompt,
			Seed:      req.Output.Seed,
			ImagePath: scene.ImagePath,
		})
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", scene.Idx, err)
		}
		path, err := p.artifacts.Save(req.Output.ID, "video", fmt.Sprintf("scene-%03d.mp4", scene.Idx), media.Data)
		if err != nil {
			return nil, err
		}
		pathCopy := path
		result.SceneAssets[scene.ID] = output.SceneAssets{VideoPath: &pathCopy}
		result.CostUSD += media.CostUSD
	}
	return result, nil
}

// renderProducer assembles the final composition manifest. Actual video
// muxing happens outside this process; the manifest lists every input
// the renderer needs in scene order.
type renderProducer struct {
	artifacts *ArtifactStore
}

type renderManifest struct {
	OutputID string             `json:"output_id"`
	BGMPath  string             `json:"bgm_path,omitempty"`
	Scenes   []renderSceneInput `json:"scenes"`
}

type renderSceneInput struct {
	Idx       int    `json:"idx"`
	VideoPath string `json:"video_path"`
	AudioPath string `json:"audio_path"`
	SFXPath   string `json:"sfx_path,omitempty"`
}

func (p *renderProducer) Produce(ctx context.Context, req Request) (*Result, error) {
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("%w: render needs scenes", services.ErrValidation)
	}
	manifest := renderManifest{
		OutputID: req.Output.ID,
		BGMPath:  req.Output.BGMPath,
		Scenes:   make([]renderSceneInput, len(req.Scenes)),
	}
	for i, scene := range req.Scenes {
		if scene.VideoPath == "" || scene.AudioPath == "" {
			return nil, fmt.Errorf("%w: scene %d is missing video or audio", services.ErrValidation, scene.Idx)
		}
		manifest.Scenes[i] = renderSceneInput{
			Idx:       scene.Idx,
			VideoPath: scene.VideoPath,
			AudioPath: scene.AudioPath,
			SFXPath:   scene.SFXPath,
		}
	}

	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode render manifest: %w", err)
	}
	path, err := p.artifacts.Save(req.Output.ID, "render", "render.json", encoded)
	if err != nil {
		return nil, err
	}

	return &Result{
		ProductKind: output.ProductRender,
		Payload:     string(encoded),
		RenderPath:  path,
		Provider:    "render",
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON answer in one.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
