package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/output"
	"loom/internal/providers"
	"loom/internal/resolve"
	"loom/internal/services"
	"loom/internal/stages"
)

// Executor starts stage generations and applies their results. At most
// one generation per (output, stage) runs at a time; the gate row in
// SQLite is the lock, so the guarantee holds across processes too.
type Executor struct {
	store    *output.Store
	registry *providers.Registry
	notifier notifications.Service
	logger   *slog.Logger

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an executor. Generations run on a background context that
// lives until Close.
func New(store *output.Store, registry *providers.Registry, notifier notifications.Service, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Executor{
		store:    store,
		registry: registry,
		notifier: notifier,
		logger:   logger,
		runCtx:   runCtx,
		cancel:   cancel,
	}
}

// Close stops in-flight generations and waits for their goroutines.
func (e *Executor) Close() {
	e.cancel()
	e.wg.Wait()
}

// Start begins generating a stage for an output. It returns started=false
// without error when the stage is already generating, which callers must
// treat as success: the work is happening, just not on their behalf.
//
// The requested stage must be the output's current stage per the
// resolver. Starting a FAILED or REJECTED stage again is a retry and
// passes the stored reviewer feedback back to the provider.
func (e *Executor) Start(ctx context.Context, outputID string, stage stages.Stage) (bool, error) {
	current, snapshot, err := resolve.Load(ctx, e.store, outputID)
	if err != nil {
		return false, err
	}
	switch {
	case current.Blocked:
		return false, fmt.Errorf("%w: output is failed and needs a reset", services.ErrValidation)
	case current.Final:
		return false, fmt.Errorf("%w: pipeline already complete", services.ErrValidation)
	case !startAllowed(current, snapshot, stage):
		return false, fmt.Errorf("%w: %s is not the current stage (current: %s)", services.ErrValidation, stage, current.Stage)
	}

	producer, ok := e.registry.For(stage)
	if !ok {
		return false, fmt.Errorf("%w: no provider configured for %s", services.ErrValidation, stage)
	}

	gate, err := e.store.Gate(ctx, outputID, stage)
	if err != nil {
		return false, err
	}
	feedback := ""
	if gate.Status == output.GateRejected || gate.Status == output.GateFailed {
		feedback = gate.Feedback
	}

	runID := uuid.NewString()
	acquired, err := e.store.BeginGeneration(ctx, outputID, stage, runID)
	if err != nil {
		return false, err
	}
	if !acquired {
		e.logger.Debug("stage start skipped",
			logging.String(logging.FieldOutputID, outputID),
			logging.String(logging.FieldStage, string(stage)),
			logging.String("reason", "gate not startable"))
		return false, nil
	}

	if err := e.store.LogExecution(ctx, outputID, string(stage), "started", ""); err != nil {
		e.logger.Warn("execution log write failed", logging.Error(err))
	}
	if stage == stages.Render {
		if _, err := e.store.SetStatus(ctx, outputID, output.StatusInProgress); err != nil {
			e.logger.Warn("render status transition failed", logging.Error(err))
		}
	}

	e.logger.Info("stage started",
		logging.String(logging.FieldOutputID, outputID),
		logging.String(logging.FieldStage, string(stage)),
		logging.String("run_id", runID))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(outputID, stage, runID, feedback, producer)
	}()
	return true, nil
}

// startAllowed checks that a stage may generate right now. Usually the
// stage must be the resolver's current stage. The one exception is the
// writer: with the outline approved and no prose yet, the resolver still
// reports the outline as current (the outline view hosts the kickoff),
// but the generation that runs is writer prose.
func startAllowed(current resolve.Current, snapshot resolve.Snapshot, stage stages.Stage) bool {
	if current.Stage == stage {
		return true
	}
	if stage == stages.Writer &&
		current.Stage == stages.StoryOutline &&
		snapshot.HasOutline &&
		snapshot.Gates[stages.StoryOutline] == output.GateApproved &&
		snapshot.SceneCount == 0 &&
		!snapshot.HasProse {
		return true
	}
	return false
}

func (e *Executor) run(outputID string, stage stages.Stage, runID, feedback string, producer providers.Producer) {
	ctx := services.WithOutputID(services.WithStage(e.runCtx, string(stage)), outputID)
	logger := logging.WithContext(ctx, e.logger)

	req, err := e.loadRequest(ctx, outputID, feedback)
	if err != nil {
		e.failRun(ctx, logger, outputID, stage, runID, err)
		return
	}

	result, err := producer.Produce(ctx, *req)
	if err != nil {
		e.failRun(ctx, logger, outputID, stage, runID, err)
		return
	}

	applied, err := e.store.CompleteGeneration(ctx, outputID, stage, runID)
	if err != nil {
		logger.Error("completion write failed", logging.Error(err))
		return
	}
	if !applied {
		logger.Info("stale run result discarded", logging.String("run_id", runID))
		return
	}

	if err := e.persistResult(ctx, outputID, stage, result); err != nil {
		logger.Error("result persistence failed", logging.Error(err))
		if _, tErr := e.store.TransitionGate(ctx, outputID, stage, output.GateFailed, output.GatePendingReview); tErr != nil {
			logger.Error("failure transition failed", logging.Error(tErr))
		}
		return
	}

	if err := e.store.LogExecution(ctx, outputID, string(stage), "completed", ""); err != nil {
		logger.Warn("execution log write failed", logging.Error(err))
	}

	title := ""
	if req.Output != nil {
		title = req.Output.Title
	}
	if stage == stages.Render {
		if _, err := e.store.SetStatus(ctx, outputID, output.StatusRendered, output.StatusInProgress); err != nil {
			logger.Warn("rendered status transition failed", logging.Error(err))
		}
		if err := e.notifier.NotifyRenderCompleted(ctx, title); err != nil {
			logger.Debug("render notification failed", logging.Error(err))
		}
	}
	if err := e.notifier.NotifyReviewReady(ctx, title, stage); err != nil {
		logger.Debug("review notification failed", logging.Error(err))
	}

	logger.Info("stage generation completed",
		logging.String("run_id", runID),
		logging.String("provider", result.Provider))
}

func (e *Executor) loadRequest(ctx context.Context, outputID, feedback string) (*providers.Request, error) {
	out, err := e.store.GetByID(ctx, outputID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, resolve.ErrOutputNotFound
	}
	scenes, err := e.store.Scenes(ctx, outputID)
	if err != nil {
		return nil, err
	}

	req := &providers.Request{Output: out, Scenes: scenes, Feedback: feedback}
	if outline, err := e.store.Product(ctx, outputID, output.ProductStoryOutline); err != nil {
		return nil, err
	} else if outline != nil {
		req.Outline = outline.Payload
	}
	if prose, err := e.store.Product(ctx, outputID, output.ProductWriterProse); err != nil {
		return nil, err
	} else if prose != nil {
		req.Prose = prose.Payload
	}
	return req, nil
}

func (e *Executor) persistResult(ctx context.Context, outputID string, stage stages.Stage, result *providers.Result) error {
	if result.Scenes != nil {
		if err := e.store.ReplaceScenes(ctx, outputID, result.Scenes); err != nil {
			return err
		}
	}
	if result.ProductKind != "" {
		if err := e.store.SaveProduct(ctx, outputID, result.ProductKind, result.Payload); err != nil {
			return err
		}
	}
	for sceneID, assets := range result.SceneAssets {
		if err := e.store.SetSceneAssets(ctx, sceneID, assets); err != nil {
			return err
		}
	}
	if result.BGMPath != "" || result.RenderPath != "" {
		out, err := e.store.GetByID(ctx, outputID)
		if err != nil {
			return err
		}
		if out == nil {
			return resolve.ErrOutputNotFound
		}
		if result.BGMPath != "" {
			out.BGMPath = result.BGMPath
		}
		if result.RenderPath != "" {
			out.RenderPath = result.RenderPath
		}
		if err := e.store.Update(ctx, out); err != nil {
			return err
		}
	}
	if result.CostUSD > 0 {
		if err := e.store.RecordCost(ctx, outputID, stage, result.Provider, result.CostUSD, ""); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) failRun(ctx context.Context, logger *slog.Logger, outputID string, stage stages.Stage, runID string, runErr error) {
	kind := services.FeedbackKind(runErr)
	applied, err := e.store.FailGeneration(ctx, outputID, stage, runID, runErr.Error(), kind)
	if err != nil {
		logger.Error("failure write failed", logging.Error(err))
		return
	}
	if !applied {
		logger.Info("stale run failure discarded", logging.String("run_id", runID))
		return
	}

	if err := e.store.LogExecution(ctx, outputID, string(stage), "failed", runErr.Error()); err != nil {
		logger.Warn("execution log write failed", logging.Error(err))
	}

	title := ""
	out, getErr := e.store.GetByID(ctx, outputID)
	if getErr == nil && out != nil {
		title = out.Title
	}
	if stage == stages.Render && out != nil {
		out.Status = output.StatusFailed
		out.ErrorMessage = runErr.Error()
		if err := e.store.Update(ctx, out); err != nil {
			logger.Error("render failure status write failed", logging.Error(err))
		}
	}
	if err := e.notifier.NotifyStageFailed(ctx, title, stage, runErr); err != nil {
		logger.Debug("failure notification failed", logging.Error(err))
	}

	logger.Warn("stage generation failed",
		logging.String("run_id", runID),
		logging.String("feedback_kind", kind),
		logging.Error(runErr))
}

// Cancel aborts any in-flight generation for an output. Gates go back to
// NOT_STARTED and the output returns to DRAFT; completions from the
// cancelled runs will miss their run id and be discarded.
func (e *Executor) Cancel(ctx context.Context, outputID string) ([]stages.Stage, error) {
	reset, err := e.store.ResetGenerating(ctx, outputID)
	if err != nil {
		return nil, err
	}

	// The status resets even when no gate was mid-generation: a failed
	// completion write can leave the output IN_PROGRESS with its gates
	// already settled, and cancellation is the way out of that state.
	changed, err := e.store.SetStatus(ctx, outputID, output.StatusDraft, output.StatusInProgress)
	if err != nil {
		return reset, err
	}
	if len(reset) == 0 && !changed {
		return nil, nil
	}
	if err := e.store.LogExecution(ctx, outputID, "pipeline", "cancelled", ""); err != nil {
		e.logger.Warn("execution log write failed", logging.Error(err))
	}

	e.logger.Info("generation cancelled",
		logging.String(logging.FieldOutputID, outputID),
		logging.Int("gates_reset", len(reset)))
	return reset, nil
}
