package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/output"
	"loom/internal/resolve"
	"loom/internal/services"
	"loom/internal/stages"
)

// Controller applies review decisions to stage gates: approve, reject,
// revert, and the full plan reset. It never talks to providers; gate
// status is the only thing it rolls back, so generated artifacts always
// survive a revert.
type Controller struct {
	store    *output.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// New builds a controller.
func New(store *output.Store, notifier notifications.Service, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Controller{store: store, notifier: notifier, logger: logger}
}

// Approve marks a PENDING_REVIEW gate APPROVED. Approving an already
// approved gate is a no-op; any other source state is a validation
// error. Approving SCRIPT requires at least one scene, and approving
// RENDER completes the output.
func (c *Controller) Approve(ctx context.Context, outputID string, stage stages.Stage, feedback string) error {
	out, err := c.store.GetByID(ctx, outputID)
	if err != nil {
		return err
	}
	if out == nil {
		return resolve.ErrOutputNotFound
	}

	gate, err := c.store.Gate(ctx, outputID, stage)
	if err != nil {
		return err
	}
	switch gate.Status {
	case output.GateApproved:
		return nil
	case output.GatePendingReview:
	default:
		return fmt.Errorf("%w: cannot approve %s gate in %s", services.ErrValidation, stage, gate.Status)
	}

	if stage == stages.Script {
		count, err := c.store.SceneCount(ctx, outputID)
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: script approval requires at least one scene", services.ErrValidation)
		}
	}

	if err := c.store.SetGateStatus(ctx, outputID, stage, output.GateApproved, feedback); err != nil {
		return err
	}
	if err := c.store.LogExecution(ctx, outputID, string(stage), "approved", feedback); err != nil {
		c.logger.Warn("execution log write failed", logging.Error(err))
	}

	if stage == stages.Render {
		now := time.Now().UTC()
		out.Status = output.StatusCompleted
		out.CompletedAt = &now
		if err := c.store.Update(ctx, out); err != nil {
			return err
		}
		if err := c.notifier.NotifyOutputCompleted(ctx, out.Title); err != nil {
			c.logger.Debug("completion notification failed", logging.Error(err))
		}
	}

	c.logger.Info("stage approved",
		logging.String(logging.FieldOutputID, outputID),
		logging.String(logging.FieldStage, string(stage)))
	return nil
}

// Reject marks a PENDING_REVIEW or FAILED gate REJECTED with reviewer
// feedback. The next start for the stage carries the feedback to the
// provider.
func (c *Controller) Reject(ctx context.Context, outputID string, stage stages.Stage, feedback string) error {
	out, err := c.store.GetByID(ctx, outputID)
	if err != nil {
		return err
	}
	if out == nil {
		return resolve.ErrOutputNotFound
	}

	gate, err := c.store.Gate(ctx, outputID, stage)
	if err != nil {
		return err
	}
	switch gate.Status {
	case output.GatePendingReview, output.GateFailed:
	default:
		return fmt.Errorf("%w: cannot reject %s gate in %s", services.ErrValidation, stage, gate.Status)
	}

	if err := c.store.SetGateStatus(ctx, outputID, stage, output.GateRejected, feedback); err != nil {
		return err
	}
	if err := c.store.LogExecution(ctx, outputID, string(stage), "rejected", feedback); err != nil {
		c.logger.Warn("execution log write failed", logging.Error(err))
	}
	return nil
}

// Revert clears the APPROVED gates from targetStage to the end of the
// pipeline, latest stage first, returning the stages actually cleared.
// Nothing else is touched: scenes, products, and media artifacts remain
// for reuse after regeneration. With no approved gate at or past the
// target this is a no-op.
//
// Reverting to STORY_OUTLINE is not a revert at all, it is a full plan
// reset, and callers get ResetToPlan's artifact-wiping semantics.
func (c *Controller) Revert(ctx context.Context, outputID string, targetStage stages.Stage) ([]stages.Stage, error) {
	if targetStage == stages.StoryOutline {
		if err := c.ResetToPlan(ctx, outputID); err != nil {
			return nil, err
		}
		return stages.From(stages.StoryOutline), nil
	}

	out, err := c.store.GetByID(ctx, outputID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, resolve.ErrOutputNotFound
	}

	gates, err := c.store.Gates(ctx, outputID)
	if err != nil {
		return nil, err
	}

	tail := stages.From(targetStage)
	var approved []stages.Stage
	for _, stage := range tail {
		if gate, ok := gates[stage]; ok && gate.Status == output.GateApproved {
			approved = append(approved, stage)
		}
	}
	if len(approved) == 0 {
		return nil, nil
	}

	// Latest stage first, so a crash mid-revert leaves a consistent
	// prefix of approvals.
	reverted := make([]stages.Stage, 0, len(approved))
	for i := len(approved) - 1; i >= 0; i-- {
		stage := approved[i]
		if err := c.store.SetGateStatus(ctx, outputID, stage, output.GateNotStarted, ""); err != nil {
			return reverted, err
		}
		reverted = append(reverted, stage)
	}

	if out.Status == output.StatusCompleted || out.Status == output.StatusRendered {
		out.Status = output.StatusDraft
		out.CompletedAt = nil
		if err := c.store.Update(ctx, out); err != nil {
			return reverted, err
		}
	}

	if err := c.store.LogExecution(ctx, outputID, "pipeline", "reverted", string(targetStage)); err != nil {
		c.logger.Warn("execution log write failed", logging.Error(err))
	}

	c.logger.Info("pipeline reverted",
		logging.String(logging.FieldOutputID, outputID),
		logging.String("target_stage", string(targetStage)),
		logging.Int("gates_cleared", len(reverted)))
	return reverted, nil
}

// ResetToPlan wipes all generated work back to a clean DRAFT. Unlike
// Revert this deletes scenes, products, and gate rows outright; only
// the base configuration, the execution log, and the cost ledger
// survive.
func (c *Controller) ResetToPlan(ctx context.Context, outputID string) error {
	out, err := c.store.GetByID(ctx, outputID)
	if err != nil {
		return err
	}
	if out == nil {
		return resolve.ErrOutputNotFound
	}

	if err := c.store.ResetToPlan(ctx, outputID); err != nil {
		return err
	}
	if err := c.store.LogExecution(ctx, outputID, "pipeline", "reset", ""); err != nil {
		c.logger.Warn("execution log write failed", logging.Error(err))
	}
	if err := c.notifier.NotifyPipelineReset(ctx, out.Title); err != nil {
		c.logger.Debug("reset notification failed", logging.Error(err))
	}

	c.logger.Info("pipeline reset to plan", logging.String(logging.FieldOutputID, outputID))
	return nil
}
