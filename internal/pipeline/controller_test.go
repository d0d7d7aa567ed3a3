package pipeline

import (
	"context"
	"errors"
	"testing"

	"loom/internal/output"
	"loom/internal/resolve"
	"loom/internal/services"
	"loom/internal/stages"
	"loom/internal/testsupport"
)

func newController(t *testing.T) (*output.Store, *Controller) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return store, New(store, nil, nil)
}

func setGate(t *testing.T, store *output.Store, outputID string, stage stages.Stage, status output.GateStatus) {
	t.Helper()

	if err := store.SetGateStatus(context.Background(), outputID, stage, status, ""); err != nil {
		t.Fatalf("set %s gate: %v", stage, err)
	}
}

func mustScenes(t *testing.T, store *output.Store, outputID string) {
	t.Helper()

	scenes := []output.Scene{{Narration: "opening line", VisualDescription: "wide shot"}}
	if err := store.ReplaceScenes(context.Background(), outputID, scenes); err != nil {
		t.Fatalf("replace scenes: %v", err)
	}
}

func TestApproveRequiresPendingReview(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Gate Checks")

	err := ctrl.Approve(ctx, out.ID, stages.StoryOutline, "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for NOT_STARTED gate, got %v", err)
	}

	setGate(t, store, out.ID, stages.StoryOutline, output.GatePendingReview)
	if err := ctrl.Approve(ctx, out.ID, stages.StoryOutline, "looks good"); err != nil {
		t.Fatalf("approve pending gate: %v", err)
	}

	gate, err := store.Gate(ctx, out.ID, stages.StoryOutline)
	if err != nil {
		t.Fatalf("read gate: %v", err)
	}
	if gate.Status != output.GateApproved {
		t.Fatalf("gate status = %s, want approved", gate.Status)
	}

	// Second approval is a no-op, not an error.
	if err := ctrl.Approve(ctx, out.ID, stages.StoryOutline, ""); err != nil {
		t.Fatalf("repeat approve: %v", err)
	}
}

func TestApproveUnknownOutput(t *testing.T) {
	_, ctrl := newController(t)

	err := ctrl.Approve(context.Background(), "no-such-id", stages.StoryOutline, "")
	if !errors.Is(err, resolve.ErrOutputNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestApproveScriptNeedsScenes(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Script Gate")

	setGate(t, store, out.ID, stages.Script, output.GatePendingReview)
	err := ctrl.Approve(ctx, out.ID, stages.Script, "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without scenes, got %v", err)
	}

	mustScenes(t, store, out.ID)
	if err := ctrl.Approve(ctx, out.ID, stages.Script, ""); err != nil {
		t.Fatalf("approve script with scenes: %v", err)
	}
}

func TestApproveRenderCompletesOutput(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Final Cut")

	if _, err := store.SetStatus(ctx, out.ID, output.StatusRendered); err != nil {
		t.Fatalf("mark rendered: %v", err)
	}
	setGate(t, store, out.ID, stages.Render, output.GatePendingReview)

	if err := ctrl.Approve(ctx, out.ID, stages.Render, ""); err != nil {
		t.Fatalf("approve render: %v", err)
	}

	got, err := store.GetByID(ctx, out.ID)
	if err != nil {
		t.Fatalf("reload output: %v", err)
	}
	if got.Status != output.StatusCompleted {
		t.Fatalf("output status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestRejectStoresFeedback(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Second Draft")

	err := ctrl.Reject(ctx, out.ID, stages.Writer, "too flat")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for NOT_STARTED gate, got %v", err)
	}

	setGate(t, store, out.ID, stages.Writer, output.GatePendingReview)
	if err := ctrl.Reject(ctx, out.ID, stages.Writer, "too flat"); err != nil {
		t.Fatalf("reject pending gate: %v", err)
	}

	gate, err := store.Gate(ctx, out.ID, stages.Writer)
	if err != nil {
		t.Fatalf("read gate: %v", err)
	}
	if gate.Status != output.GateRejected {
		t.Fatalf("gate status = %s, want rejected", gate.Status)
	}
	if gate.Feedback != "too flat" {
		t.Fatalf("feedback = %q, want %q", gate.Feedback, "too flat")
	}
}

func TestRejectAllowedFromFailed(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Retry Path")

	setGate(t, store, out.ID, stages.Images, output.GateFailed)
	if err := ctrl.Reject(ctx, out.ID, stages.Images, "try a different style"); err != nil {
		t.Fatalf("reject failed gate: %v", err)
	}
}

func TestRevertClearsApprovedTail(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Rollback")

	mustScenes(t, store, out.ID)
	testsupport.ApproveStages(t, store, out.ID,
		stages.StoryOutline, stages.Script, stages.RetentionQA, stages.Images, stages.Audio)
	setGate(t, store, out.ID, stages.BGM, output.GatePendingReview)

	reverted, err := ctrl.Revert(ctx, out.ID, stages.Images)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	// Only the approved gates at or past the target, latest first.
	want := []stages.Stage{stages.Audio, stages.Images}
	if len(reverted) != len(want) {
		t.Fatalf("reverted %v, want %v", reverted, want)
	}
	for i, stage := range want {
		if reverted[i] != stage {
			t.Fatalf("reverted %v, want %v", reverted, want)
		}
	}

	gates, err := store.Gates(ctx, out.ID)
	if err != nil {
		t.Fatalf("read gates: %v", err)
	}
	if gates[stages.Images].Status != output.GateNotStarted {
		t.Fatalf("images gate = %s, want not_started", gates[stages.Images].Status)
	}
	if gates[stages.Audio].Status != output.GateNotStarted {
		t.Fatalf("audio gate = %s, want not_started", gates[stages.Audio].Status)
	}
	// Pending review past the target is untouched, as are earlier approvals.
	if gates[stages.BGM].Status != output.GatePendingReview {
		t.Fatalf("bgm gate = %s, want pending_review", gates[stages.BGM].Status)
	}
	if gates[stages.Script].Status != output.GateApproved {
		t.Fatalf("script gate = %s, want approved", gates[stages.Script].Status)
	}

	// Scenes survive the revert.
	count, err := store.SceneCount(ctx, out.ID)
	if err != nil {
		t.Fatalf("scene count: %v", err)
	}
	if count != 1 {
		t.Fatalf("scene count = %d, want 1", count)
	}
}

func TestRevertNoApprovedGatesIsNoop(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Nothing To Undo")

	setGate(t, store, out.ID, stages.Images, output.GatePendingReview)
	reverted, err := ctrl.Revert(ctx, out.ID, stages.Images)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if len(reverted) != 0 {
		t.Fatalf("reverted %v, want none", reverted)
	}
}

func TestRevertReopensCompletedOutput(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Back For Edits")

	mustScenes(t, store, out.ID)
	testsupport.ApproveStages(t, store, out.ID,
		stages.StoryOutline, stages.Script, stages.RetentionQA,
		stages.Images, stages.Audio, stages.BGM, stages.Motion, stages.Render)
	if _, err := store.SetStatus(ctx, out.ID, output.StatusCompleted); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	if _, err := ctrl.Revert(ctx, out.ID, stages.Render); err != nil {
		t.Fatalf("revert render: %v", err)
	}

	got, err := store.GetByID(ctx, out.ID)
	if err != nil {
		t.Fatalf("reload output: %v", err)
	}
	if got.Status != output.StatusDraft {
		t.Fatalf("output status = %s, want draft", got.Status)
	}
	if got.CompletedAt != nil {
		t.Fatal("expected completed_at cleared")
	}
}

func TestRevertToStoryOutlineResetsPlan(t *testing.T) {
	store, ctrl := newController(t)
	ctx := context.Background()
	out := testsupport.NewOutput(t, store, "Start Over")

	mustScenes(t, store, out.ID)
	testsupport.ApproveStages(t, store, out.ID, stages.StoryOutline, stages.Script)
	if err := store.SaveProduct(ctx, out.ID, output.ProductStoryOutline, "outline text"); err != nil {
		t.Fatalf("save product: %v", err)
	}

	if _, err := ctrl.Revert(ctx, out.ID, stages.StoryOutline); err != nil {
		t.Fatalf("revert to story outline: %v", err)
	}

	count, err := store.SceneCount(ctx, out.ID)
	if err != nil {
		t.Fatalf("scene count: %v", err)
	}
	if count != 0 {
		t.Fatalf("scene count = %d, want 0 after reset", count)
	}
	has, err := store.HasProduct(ctx, out.ID, output.ProductStoryOutline)
	if err != nil {
		t.Fatalf("has product: %v", err)
	}
	if has {
		t.Fatal("expected products deleted after reset")
	}
	gates, err := store.Gates(ctx, out.ID)
	if err != nil {
		t.Fatalf("read gates: %v", err)
	}
	for stage, gate := range gates {
		if gate.Status != output.GateNotStarted {
			t.Fatalf("%s gate = %s, want not_started after reset", stage, gate.Status)
		}
	}
}

func TestResetToPlanUnknownOutput(t *testing.T) {
	_, ctrl := newController(t)

	err := ctrl.ResetToPlan(context.Background(), "no-such-id")
	if !errors.Is(err, resolve.ErrOutputNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
