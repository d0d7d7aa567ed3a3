package api_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/executor"
	"loom/internal/output"
	"loom/internal/pipeline"
	"loom/internal/providers"
	"loom/internal/resolve"
	"loom/internal/services"
	"loom/internal/stages"
	"loom/internal/testsupport"
)

type recordingProducer struct {
	mu    sync.Mutex
	calls []providers.Request
}

func (p *recordingProducer) Produce(ctx context.Context, req providers.Request) (*providers.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	return &providers.Result{
		ProductKind: output.ProductStoryOutline,
		Payload:     `{"acts": 3}`,
		Provider:    "fake",
	}, nil
}

func (p *recordingProducer) lastFeedback() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return ""
	}
	return p.calls[len(p.calls)-1].Feedback
}

func newService(t *testing.T) (*config.Config, *output.Store, *providers.Registry, *api.OutputService) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	store := testsupport.MustOpenStore(t, cfg)

	artifacts, err := providers.NewArtifactStore(filepath.Join(testsupport.BaseDir(cfg), "artifacts"))
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	registry, err := providers.NewRegistry(cfg, artifacts)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	exec := executor.New(store, registry, nil, nil)
	t.Cleanup(exec.Close)
	ctrl := pipeline.New(store, nil, nil)
	return cfg, store, registry, api.NewOutputService(cfg, store, exec, ctrl, nil)
}

func waitFor(t *testing.T, what string, predicate func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCreateListDescribe(t *testing.T) {
	_, _, _, svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateOutputRequest{
		Title:       "Deep Sea Mysteries",
		Language:    "en",
		VisualStyle: "documentary",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != string(output.StatusDraft) {
		t.Fatalf("status = %s, want draft", created.Status)
	}

	listed, err := svc.List(ctx, "draft")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("list = %+v, want the created output", listed)
	}

	if _, err := svc.List(ctx, "bogus"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	detail, err := svc.Describe(ctx, created.ID)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if detail.Current.Stage != string(stages.StoryOutline) {
		t.Fatalf("current stage = %q, want story_outline", detail.Current.Stage)
	}
	if len(detail.Gates) != len(stages.All()) {
		t.Fatalf("gates = %d, want %d", len(detail.Gates), len(stages.All()))
	}

	if _, err := svc.Describe(ctx, "missing"); !errors.Is(err, resolve.ErrOutputNotFound) {
		t.Fatalf("expected not-found for missing output, got %v", err)
	}
}

func TestCurrentStageAndStart(t *testing.T) {
	_, store, registry, svc := newService(t)
	ctx := context.Background()

	fake := &recordingProducer{}
	registry.Register(stages.StoryOutline, fake)

	created, err := svc.Create(ctx, api.CreateOutputRequest{Title: "Kickoff"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	current, err := svc.CurrentStage(ctx, created.ID)
	if err != nil {
		t.Fatalf("current stage: %v", err)
	}
	if current.Stage != string(stages.StoryOutline) || current.Final || current.Blocked {
		t.Fatalf("unexpected current view %+v", current)
	}

	if _, err := svc.StartStage(ctx, created.ID, "nonsense"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown stage, got %v", err)
	}

	accepted, err := svc.StartStage(ctx, created.ID, "story_outline")
	if err != nil {
		t.Fatalf("start stage: %v", err)
	}
	if !accepted {
		t.Fatal("expected start to be accepted")
	}

	waitFor(t, "outline pending review", func() bool {
		gate, err := store.Gate(ctx, created.ID, stages.StoryOutline)
		return err == nil && gate.Status == output.GatePendingReview
	})
}

func TestRejectStageRestartsWithFeedback(t *testing.T) {
	_, store, registry, svc := newService(t)
	ctx := context.Background()

	fake := &recordingProducer{}
	registry.Register(stages.StoryOutline, fake)

	created, err := svc.Create(ctx, api.CreateOutputRequest{Title: "Second Opinion"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetGateStatus(ctx, created.ID, stages.StoryOutline, output.GatePendingReview, ""); err != nil {
		t.Fatalf("seed gate: %v", err)
	}

	accepted, err := svc.RejectStage(ctx, created.ID, "story_outline", "needs a stronger hook")
	if err != nil {
		t.Fatalf("reject stage: %v", err)
	}
	if !accepted {
		t.Fatal("expected restart to be accepted")
	}

	waitFor(t, "regeneration with feedback", func() bool {
		return fake.lastFeedback() == "needs a stronger hook"
	})
}

func TestCancelStaleRunPreconditions(t *testing.T) {
	cfg, store, _, svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateOutputRequest{Title: "Hung"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.CancelStaleRun(ctx, created.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error with no active run, got %v", err)
	}

	if started, err := store.BeginGeneration(ctx, created.ID, stages.Images, "run-hung"); err != nil || !started {
		t.Fatalf("begin generation: started=%v err=%v", started, err)
	}

	// Fresh run is active but not yet stale.
	if _, err := svc.CancelStaleRun(ctx, created.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error inside the stale window, got %v", err)
	}

	cfg.Workflow.StaleTimeout = 0
	exec := executor.New(store, nil, nil, nil)
	t.Cleanup(exec.Close)
	ctrl := pipeline.New(store, nil, nil)
	stale := api.NewOutputService(cfg, store, exec, ctrl, nil)

	time.Sleep(5 * time.Millisecond)
	cancelled, err := stale.CancelStaleRun(ctx, created.ID)
	if err != nil {
		t.Fatalf("cancel stale run: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0] != string(stages.Images) {
		t.Fatalf("cancelled = %v, want [images]", cancelled)
	}
}

func TestCancelStaleRunResetsStuckStatus(t *testing.T) {
	cfg, store, _, _ := newService(t)
	ctx := context.Background()

	created := testsupport.NewOutput(t, store, "Stuck Status")
	if _, err := store.SetStatus(ctx, created.ID, output.StatusInProgress); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	cfg.Workflow.StaleTimeout = 0
	exec := executor.New(store, nil, nil, nil)
	t.Cleanup(exec.Close)
	ctrl := pipeline.New(store, nil, nil)
	svc := api.NewOutputService(cfg, store, exec, ctrl, nil)

	time.Sleep(5 * time.Millisecond)
	cancelled, err := svc.CancelStaleRun(ctx, created.ID)
	if err != nil {
		t.Fatalf("cancel stale run: %v", err)
	}
	if len(cancelled) != 0 {
		t.Fatalf("cancelled = %v, want no gates", cancelled)
	}

	fresh, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fresh.Status != output.StatusDraft {
		t.Fatalf("status = %s, want draft", fresh.Status)
	}

	gate, err := store.Gate(ctx, created.ID, stages.Images)
	if err != nil {
		t.Fatalf("read gate: %v", err)
	}
	if gate.Status == output.GateGenerating {
		t.Fatal("expected gate reset after cancel")
	}
}

func TestRevertToStageThroughService(t *testing.T) {
	_, store, _, svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateOutputRequest{Title: "Walk Back"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	testsupport.ApproveStages(t, store, created.ID, stages.StoryOutline, stages.Script, stages.RetentionQA)

	reverted, err := svc.RevertToStage(ctx, created.ID, "retention_qa")
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if len(reverted) != 1 || reverted[0] != string(stages.RetentionQA) {
		t.Fatalf("reverted = %v, want [retention_qa]", reverted)
	}
}
