// Package watch provides the polling side of the pipeline: waiting for
// an output's active generation to settle, and a background detector
// that flags runs stuck past the stale timeout. Detection is advisory;
// cancellation stays a caller decision.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/output"
	"loom/internal/resolve"
	"loom/internal/stages"
)

// Watcher polls the store for generation progress and scans for stale
// runs in the background.
type Watcher struct {
	store        *output.Store
	notifier     notifications.Service
	logger       *slog.Logger
	pollInterval time.Duration
	staleTimeout time.Duration
	onStale      func(output.StaleGate)

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	reported map[staleKey]time.Time
}

type staleKey struct {
	outputID string
	stage    stages.Stage
}

// Option configures optional Watcher behavior.
type Option func(*Watcher)

// WithIntervals overrides the configured poll interval and stale
// timeout (used in tests).
func WithIntervals(poll, stale time.Duration) Option {
	return func(w *Watcher) {
		w.pollInterval = poll
		w.staleTimeout = stale
	}
}

// WithStaleHandler installs a callback invoked once per newly detected
// stale run.
func WithStaleHandler(fn func(output.StaleGate)) Option {
	return func(w *Watcher) {
		w.onStale = fn
	}
}

// NewWatcher constructs a watcher from the workflow configuration.
func NewWatcher(cfg *config.Config, store *output.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	w := &Watcher{
		store:        store,
		notifier:     notifier,
		logger:       logger.With(logging.String("component", "watch")),
		pollInterval: time.Duration(cfg.Workflow.PollInterval) * time.Second,
		staleTimeout: time.Duration(cfg.Workflow.StaleTimeout) * time.Second,
		reported:     make(map[staleKey]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background stale-run scan.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.scanLoop(runCtx)
	return nil
}

// Stop terminates the background scan and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// Await polls the output until no stage is GENERATING and the output is
// no longer rendering, then returns the settled view. Callers bound the
// wait through ctx.
func (w *Watcher) Await(ctx context.Context, outputID string) (resolve.Current, error) {
	for {
		current, snapshot, err := resolve.Load(ctx, w.store, outputID)
		if err != nil {
			return resolve.Current{}, err
		}
		if settled(snapshot) {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return resolve.Current{}, ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

func settled(snapshot resolve.Snapshot) bool {
	if snapshot.Status == output.StatusInProgress {
		return false
	}
	for _, gate := range snapshot.Gates {
		if gate == output.GateGenerating {
			return false
		}
	}
	return true
}

// StaleRuns returns the gates that have been GENERATING longer than the
// stale timeout.
func (w *Watcher) StaleRuns(ctx context.Context) ([]output.StaleGate, error) {
	if w.staleTimeout <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().Add(-w.staleTimeout)
	return w.store.StaleGates(ctx, cutoff)
}

func (w *Watcher) scanLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanOnce(ctx)
		}
	}
}

func (w *Watcher) scanOnce(ctx context.Context) {
	gates, err := w.StaleRuns(ctx)
	if err != nil {
		w.logger.Warn("stale run scan failed", logging.Error(err))
		return
	}

	seen := make(map[staleKey]struct{}, len(gates))
	for _, gate := range gates {
		key := staleKey{outputID: gate.OutputID, stage: gate.Stage}
		seen[key] = struct{}{}
		// Report each stuck run once per invocation; a restarted run
		// has a fresh executed_at and reports again.
		if last, ok := w.reported[key]; ok && last.Equal(gate.ExecutedAt) {
			continue
		}
		w.reported[key] = gate.ExecutedAt

		w.logger.Warn("stale generation run",
			logging.String(logging.FieldOutputID, gate.OutputID),
			logging.String(logging.FieldStage, string(gate.Stage)),
			logging.Duration("running_for", time.Since(gate.ExecutedAt)))
		if w.onStale != nil {
			w.onStale(gate)
		}
	}

	for key := range w.reported {
		if _, ok := seen[key]; !ok {
			delete(w.reported, key)
		}
	}
}
