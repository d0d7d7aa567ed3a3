package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/executor"
	"loom/internal/language"
	"loom/internal/logging"
	"loom/internal/output"
	"loom/internal/pipeline"
	"loom/internal/resolve"
	"loom/internal/services"
	"loom/internal/stages"
)

// OutputService exposes the pipeline's logical operations: create and
// inspect outputs, start stage generation, review gates, revert, and
// cancel stale runs.
type OutputService struct {
	store        *output.Store
	executor     *executor.Executor
	controller   *pipeline.Controller
	staleTimeout time.Duration
	logger       *slog.Logger
}

// NewOutputService wires the service around its collaborators.
func NewOutputService(cfg *config.Config, store *output.Store, exec *executor.Executor, ctrl *pipeline.Controller, logger *slog.Logger) *OutputService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OutputService{
		store:        store,
		executor:     exec,
		controller:   ctrl,
		staleTimeout: time.Duration(cfg.Workflow.StaleTimeout) * time.Second,
		logger:       logger,
	}
}

// Create registers a new draft output. The narration language is
// canonicalized so prompts and speech synthesis see one spelling.
func (s *OutputService) Create(ctx context.Context, req CreateOutputRequest) (OutputSummary, error) {
	lang := language.DefaultTag
	if raw := strings.TrimSpace(req.Language); raw != "" {
		lang = language.Normalize(raw)
		if lang == "" {
			return OutputSummary{}, fmt.Errorf("%w: unrecognized language %q", services.ErrValidation, raw)
		}
	}
	out, err := s.store.NewOutput(ctx, output.NewOutputParams{
		Title:              req.Title,
		Language:           lang,
		VoiceID:            req.VoiceID,
		SpeechRate:         req.SpeechRate,
		VisualStyle:        req.VisualStyle,
		ScriptStyle:        req.ScriptStyle,
		Seed:               req.Seed,
		MustInclude:        req.MustInclude,
		MustExclude:        req.MustExclude,
		MonetizationPlanID: req.MonetizationPlanID,
	})
	if err != nil {
		return OutputSummary{}, err
	}
	return FromOutput(out), nil
}

// List returns outputs filtered by status strings.
func (s *OutputService) List(ctx context.Context, statuses ...string) ([]OutputSummary, error) {
	parsed := make([]output.Status, 0, len(statuses))
	for _, raw := range statuses {
		status, ok := output.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", services.ErrValidation, raw)
		}
		parsed = append(parsed, status)
	}
	outs, err := s.store.List(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	return FromOutputs(outs), nil
}

// Describe assembles the full view of one output.
func (s *OutputService) Describe(ctx context.Context, outputID string) (*OutputDetail, error) {
	out, err := s.store.GetByID(ctx, outputID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, resolve.ErrOutputNotFound
	}

	current, _, err := resolve.Load(ctx, s.store, outputID)
	if err != nil {
		return nil, err
	}
	gates, err := s.store.Gates(ctx, outputID)
	if err != nil {
		return nil, err
	}
	scenes, err := s.store.Scenes(ctx, outputID)
	if err != nil {
		return nil, err
	}
	costTotal, err := s.store.CostTotal(ctx, outputID)
	if err != nil {
		return nil, err
	}

	detail := &OutputDetail{
		OutputSummary: FromOutput(out),
		Current:       FromCurrent(current),
		Gates:         FromGates(gates),
		Scenes:        FromScenes(scenes),
		SceneCount:    len(scenes),
		BGMPath:       out.BGMPath,
		RenderPath:    out.RenderPath,
		ErrorMessage:  out.ErrorMessage,
		CostTotalUSD:  costTotal,
	}
	if out.CompletedAt != nil {
		detail.CompletedAt = formatTime(*out.CompletedAt)
	}
	return detail, nil
}

// CurrentStage returns the resolver's view for one output.
func (s *OutputService) CurrentStage(ctx context.Context, outputID string) (CurrentStageView, error) {
	current, _, err := resolve.Load(ctx, s.store, outputID)
	if err != nil {
		return CurrentStageView{}, err
	}
	return FromCurrent(current), nil
}

// StartStage begins generation for a stage. A false result with nil
// error means another run already holds the gate.
func (s *OutputService) StartStage(ctx context.Context, outputID, stage string) (bool, error) {
	parsed, err := s.parseStage(stage)
	if err != nil {
		return false, err
	}
	return s.executor.Start(ctx, outputID, parsed)
}

// ApproveStage marks a pending gate approved.
func (s *OutputService) ApproveStage(ctx context.Context, outputID, stage, feedback string) error {
	parsed, err := s.parseStage(stage)
	if err != nil {
		return err
	}
	return s.controller.Approve(ctx, outputID, parsed, feedback)
}

// RejectStage records reviewer feedback and immediately restarts
// generation so the provider sees it. A false result means the gate was
// rejected but the restart lost the start race.
func (s *OutputService) RejectStage(ctx context.Context, outputID, stage, feedback string) (bool, error) {
	parsed, err := s.parseStage(stage)
	if err != nil {
		return false, err
	}
	if err := s.controller.Reject(ctx, outputID, parsed, feedback); err != nil {
		return false, err
	}
	return s.executor.Start(ctx, outputID, parsed)
}

// RevertToStage rolls approvals back to the target stage. Reverting to
// the first stage resets the whole plan.
func (s *OutputService) RevertToStage(ctx context.Context, outputID, targetStage string) ([]string, error) {
	parsed, err := s.parseStage(targetStage)
	if err != nil {
		return nil, err
	}
	reverted, err := s.controller.Revert(ctx, outputID, parsed)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(reverted))
	for _, stage := range reverted {
		names = append(names, string(stage))
	}
	return names, nil
}

// CancelStaleRun resets the bookkeeping for a run stuck past the stale
// timeout. It refuses when nothing is running or the run is still
// within its window; the external job, if any, is not killed.
func (s *OutputService) CancelStaleRun(ctx context.Context, outputID string) ([]string, error) {
	out, err := s.store.GetByID(ctx, outputID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, resolve.ErrOutputNotFound
	}

	gates, err := s.store.Gates(ctx, outputID)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-s.staleTimeout)
	active, stale := false, false
	for _, gate := range gates {
		if gate.Status != output.GateGenerating {
			continue
		}
		active = true
		if gate.ExecutedAt != nil && gate.ExecutedAt.Before(cutoff) {
			stale = true
		}
	}
	if out.Status == output.StatusInProgress {
		active = true
		if out.UpdatedAt.Before(cutoff) {
			stale = true
		}
	}
	if !active {
		return nil, fmt.Errorf("%w: no generation run in progress", services.ErrValidation)
	}
	if !stale {
		return nil, fmt.Errorf("%w: run has not exceeded the stale timeout", services.ErrValidation)
	}

	cancelled, err := s.executor.Cancel(ctx, outputID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cancelled))
	for _, stage := range cancelled {
		names = append(names, string(stage))
	}
	s.logger.Info("stale run cancelled",
		logging.String(logging.FieldOutputID, outputID),
		logging.Int("gates_reset", len(names)))
	return names, nil
}

// Delete removes an output and all of its pipeline state.
func (s *OutputService) Delete(ctx context.Context, outputID string) error {
	removed, err := s.store.Delete(ctx, outputID)
	if err != nil {
		return err
	}
	if !removed {
		return resolve.ErrOutputNotFound
	}
	return nil
}

// Health returns aggregated output counts.
func (s *OutputService) Health(ctx context.Context) (HealthView, error) {
	summary, err := s.store.Health(ctx)
	if err != nil {
		return HealthView{}, err
	}
	return FromHealth(summary), nil
}

// Executions returns the most recent pipeline log entries.
func (s *OutputService) Executions(ctx context.Context, outputID string, limit int) ([]ExecutionEntry, error) {
	entries, err := s.store.Executions(ctx, outputID, limit)
	if err != nil {
		return nil, err
	}
	return FromExecutions(entries), nil
}

// Costs returns the spend ledger for an output.
func (s *OutputService) Costs(ctx context.Context, outputID string) ([]CostEntry, error) {
	costs, err := s.store.Costs(ctx, outputID)
	if err != nil {
		return nil, err
	}
	return FromCosts(costs), nil
}

func (s *OutputService) parseStage(raw string) (stages.Stage, error) {
	stage, ok := stages.Parse(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown stage %q", services.ErrValidation, raw)
	}
	return stage, nil
}
