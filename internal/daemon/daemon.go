package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/executor"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/output"
	"loom/internal/watch"
)

// Daemon coordinates the background services and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *output.Store
	executor *executor.Executor
	watcher  *watch.Watcher
	outputs  *api.OutputService
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	LogPath      string
	Health       api.HealthView
	StaleRuns    []api.StaleRunView
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *output.Store, exec *executor.Executor, watcher *watch.Watcher, outputs *api.OutputService, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || exec == nil || watcher == nil || outputs == nil {
		return nil, errors.New("daemon requires config, store, executor, watcher, and output service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "loomd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		executor: exec,
		watcher:  watcher,
		outputs:  outputs,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "loom.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the stale-run watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another loom daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.watcher.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start watcher: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("loom daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.watcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("loom daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.executor.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime and aggregate pipeline state.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
	}

	health, err := d.outputs.Health(ctx)
	if err != nil {
		d.logger.Warn("health query failed", logging.Error(err))
	} else {
		status.Health = health
	}

	stale, err := d.watcher.StaleRuns(ctx)
	if err != nil {
		d.logger.Warn("stale run query failed", logging.Error(err))
	} else {
		status.StaleRuns = api.FromStaleGates(stale)
	}
	return status
}

// Outputs exposes the pipeline operations for IPC callers.
func (d *Daemon) Outputs() *api.OutputService {
	return d.outputs
}

// LogPath returns the daemon log file path.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// TestNotification sends a test message through the notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "notification sent", nil
}
