package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/daemon"
	"loom/internal/executor"
	"loom/internal/output"
	"loom/internal/pipeline"
	"loom/internal/providers"
	"loom/internal/testsupport"
	"loom/internal/watch"
)

func newDaemon(t *testing.T) (*config.Config, *output.Store, *daemon.Daemon) {
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

	watcher := watch.NewWatcher(cfg, store, nil, nil, watch.WithIntervals(10*time.Millisecond, time.Minute))
	ctrl := pipeline.New(store, nil, nil)
	svc := api.NewOutputService(cfg, store, exec, ctrl, nil)

	d, err := daemon.New(cfg, store, exec, watcher, svc, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return cfg, store, d
}

func TestDaemonStartStop(t *testing.T) {
	_, _, d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail while running")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("status should report running")
	}
	if status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("incomplete status %+v", status)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("status should report stopped")
	}
	// Stop is idempotent.
	d.Stop()
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg, store, d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	defer d.Stop()

	exec := executor.New(store, nil, nil, nil)
	t.Cleanup(exec.Close)
	watcher := watch.NewWatcher(cfg, store, nil, nil)
	ctrl := pipeline.New(store, nil, nil)
	svc := api.NewOutputService(cfg, store, exec, ctrl, nil)

	second, err := daemon.New(cfg, store, exec, watcher, svc, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected lock contention to fail the second instance")
	}
}

func TestDaemonStatusIncludesHealth(t *testing.T) {
	_, store, d := newDaemon(t)
	ctx := context.Background()

	testsupport.NewOutput(t, store, "Counted")
	status := d.Status(ctx)
	if status.Health.Total != 1 || status.Health.Draft != 1 {
		t.Fatalf("health = %+v, want one draft output", status.Health)
	}
}
