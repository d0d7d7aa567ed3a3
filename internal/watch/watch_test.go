package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"loom/internal/output"
	"loom/internal/stages"
	"loom/internal/testsupport"
)

func TestAwaitReturnsOnceGenerationSettles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	out := testsupport.NewOutput(t, store, "Settling")
	ctx := context.Background()

	runID := "run-await"
	started, err := store.BeginGeneration(ctx, out.ID, stages.StoryOutline, runID)
	if err != nil || !started {
		t.Fatalf("begin generation: started=%v err=%v", started, err)
	}

	watcher := NewWatcher(cfg, store, nil, nil, WithIntervals(10*time.Millisecond, time.Minute))

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		if _, err := store.CompleteGeneration(context.Background(), out.ID, stages.StoryOutline, runID); err != nil {
			t.Errorf("complete generation: %v", err)
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	current, err := watcher.Await(waitCtx, out.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	<-done

	if current.Final || current.Blocked {
		t.Fatalf("unexpected terminal view: %+v", current)
	}
	if current.Stage != stages.StoryOutline {
		t.Fatalf("current stage = %s, want story_outline pending review", current.Stage)
	}
	gate, err := store.Gate(ctx, out.ID, stages.StoryOutline)
	if err != nil {
		t.Fatalf("read gate: %v", err)
	}
	if gate.Status != output.GatePendingReview {
		t.Fatalf("gate = %s, want pending_review", gate.Status)
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	out := testsupport.NewOutput(t, store, "Stuck")
	ctx := context.Background()

	if started, err := store.BeginGeneration(ctx, out.ID, stages.StoryOutline, "run-stuck"); err != nil || !started {
		t.Fatalf("begin generation: started=%v err=%v", started, err)
	}

	watcher := NewWatcher(cfg, store, nil, nil, WithIntervals(10*time.Millisecond, time.Minute))
	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()

	if _, err := watcher.Await(waitCtx, out.ID); err == nil {
		t.Fatal("expected context deadline error while gate stays generating")
	}
}

func TestStaleRunsRespectCutoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	out := testsupport.NewOutput(t, store, "Slow Run")
	ctx := context.Background()

	if started, err := store.BeginGeneration(ctx, out.ID, stages.Images, "run-slow"); err != nil || !started {
		t.Fatalf("begin generation: started=%v err=%v", started, err)
	}

	fresh := NewWatcher(cfg, store, nil, nil, WithIntervals(10*time.Millisecond, time.Hour))
	runs, err := fresh.StaleRuns(ctx)
	if err != nil {
		t.Fatalf("stale runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no stale runs inside the timeout, got %d", len(runs))
	}

	tight := NewWatcher(cfg, store, nil, nil, WithIntervals(10*time.Millisecond, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)
	runs, err = tight.StaleRuns(ctx)
	if err != nil {
		t.Fatalf("stale runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one stale run, got %d", len(runs))
	}
	if runs[0].OutputID != out.ID || runs[0].Stage != stages.Images {
		t.Fatalf("unexpected stale run %+v", runs[0])
	}
}

func TestScanReportsStaleRunOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	out := testsupport.NewOutput(t, store, "Hung Run")
	ctx := context.Background()

	if started, err := store.BeginGeneration(ctx, out.ID, stages.Audio, "run-hung"); err != nil || !started {
		t.Fatalf("begin generation: started=%v err=%v", started, err)
	}
	time.Sleep(5 * time.Millisecond)

	var mu sync.Mutex
	var calls []output.StaleGate
	watcher := NewWatcher(cfg, store, nil, nil,
		WithIntervals(10*time.Millisecond, time.Nanosecond),
		WithStaleHandler(func(gate output.StaleGate) {
			mu.Lock()
			calls = append(calls, gate)
			mu.Unlock()
		}))

	watcher.scanOnce(ctx)
	watcher.scanOnce(ctx)

	mu.Lock()
	got := len(calls)
	mu.Unlock()
	if got != 1 {
		t.Fatalf("stale handler calls = %d, want 1", got)
	}
	if calls[0].Stage != stages.Audio {
		t.Fatalf("stale stage = %s, want audio", calls[0].Stage)
	}
}

func TestStartStopBackgroundScan(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkflowTimings(1, 1))
	store := testsupport.MustOpenStore(t, cfg)
	watcher := NewWatcher(cfg, store, nil, nil, WithIntervals(10*time.Millisecond, time.Minute))

	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	if err := watcher.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail while running")
	}
	watcher.Stop()
	// Stop is idempotent.
	watcher.Stop()
}
