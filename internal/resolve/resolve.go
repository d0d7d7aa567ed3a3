// Package resolve derives the current pipeline stage of an output from
// its persisted state. Resolution is a pure function of a snapshot, so
// the CLI, the daemon, and the watcher all agree on what comes next.
package resolve

import (
	"context"
	"fmt"

	"loom/internal/output"
	"loom/internal/services"
	"loom/internal/stages"
)

// ErrOutputNotFound reports a resolution request for an unknown output.
var ErrOutputNotFound = fmt.Errorf("%w: output not found", services.ErrNotFound)

// Current is the resolver's answer: the stage an output should work on
// next, or one of two sentinel states.
type Current struct {
	Stage stages.Stage
	// Final is set when every stage is done and the output is rendered
	// or completed. Stage is empty in that case.
	Final bool
	// Blocked is set when the output is failed and cannot progress
	// without operator intervention. Stage is empty in that case.
	Blocked bool
}

// CurrentFinal reports that the pipeline is finished.
func CurrentFinal() Current { return Current{Final: true} }

// CurrentNone reports that the pipeline is blocked.
func CurrentNone() Current { return Current{Blocked: true} }

// CurrentStage reports the next stage to work on.
func CurrentStage(stage stages.Stage) Current { return Current{Stage: stage} }

// Snapshot is the minimal read of pipeline state the resolver needs.
// It is taken in one pass so a resolution never mixes data from two
// moments.
type Snapshot struct {
	Status     output.Status
	Gates      map[stages.Stage]output.GateStatus
	SceneCount int
	HasOutline bool
	HasProse   bool
}

func (s Snapshot) gate(stage stages.Stage) output.GateStatus {
	if status, ok := s.Gates[stage]; ok {
		return status
	}
	return output.GateNotStarted
}

// Resolve computes the current stage for a snapshot. The decision order
// is fixed:
//
//  1. A failed output resolves to nothing.
//  2. Without an approved outline, the outline is current.
//  3. Without scenes, the writer path applies: no prose means the
//     outline is still current, unapproved prose means the writer is
//     current, approved prose means the script is current.
//  4. With scenes, the first unapproved stage from script onward is
//     current. The writer gate is never consulted again: scenes prove
//     the prose served its purpose, and rejecting prose after the fact
//     must not stall asset work.
//  5. With every gate approved, the render is current until the output
//     reaches completed or rendered, after which the pipeline is final.
func Resolve(snapshot Snapshot) Current {
	if snapshot.Status == output.StatusFailed {
		return CurrentNone()
	}

	if !snapshot.HasOutline || snapshot.gate(stages.StoryOutline) != output.GateApproved {
		return CurrentStage(stages.StoryOutline)
	}

	if snapshot.SceneCount == 0 {
		if !snapshot.HasProse {
			return CurrentStage(stages.StoryOutline)
		}
		if snapshot.gate(stages.Writer) != output.GateApproved {
			return CurrentStage(stages.Writer)
		}
		return CurrentStage(stages.Script)
	}

	for _, stage := range stages.From(stages.Script) {
		if stage == stages.Render {
			break
		}
		if snapshot.gate(stage) != output.GateApproved {
			return CurrentStage(stage)
		}
	}

	if snapshot.Status != output.StatusCompleted && snapshot.Status != output.StatusRendered {
		return CurrentStage(stages.Render)
	}
	return CurrentFinal()
}

// SnapshotReader is the subset of the store the resolver loads from.
type SnapshotReader interface {
	GetByID(ctx context.Context, id string) (*output.Output, error)
	Gates(ctx context.Context, outputID string) (map[stages.Stage]*output.Gate, error)
	SceneCount(ctx context.Context, outputID string) (int, error)
	HasProduct(ctx context.Context, outputID string, kind output.ProductKind) (bool, error)
}

// Load reads a snapshot for one output and resolves it. Returns the
// snapshot too so callers can reuse the gate map without re-reading.
func Load(ctx context.Context, reader SnapshotReader, outputID string) (Current, Snapshot, error) {
	out, err := reader.GetByID(ctx, outputID)
	if err != nil {
		return Current{}, Snapshot{}, err
	}
	if out == nil {
		return Current{}, Snapshot{}, ErrOutputNotFound
	}

	gates, err := reader.Gates(ctx, outputID)
	if err != nil {
		return Current{}, Snapshot{}, err
	}
	sceneCount, err := reader.SceneCount(ctx, outputID)
	if err != nil {
		return Current{}, Snapshot{}, err
	}
	hasOutline, err := reader.HasProduct(ctx, outputID, output.ProductStoryOutline)
	if err != nil {
		return Current{}, Snapshot{}, err
	}
	hasProse, err := reader.HasProduct(ctx, outputID, output.ProductWriterProse)
	if err != nil {
		return Current{}, Snapshot{}, err
	}

	snapshot := Snapshot{
		Status:     out.Status,
		Gates:      make(map[stages.Stage]output.GateStatus, len(gates)),
		SceneCount: sceneCount,
		HasOutline: hasOutline,
		HasProse:   hasProse,
	}
	for stage, gate := range gates {
		snapshot.Gates[stage] = gate.Status
	}

	return Resolve(snapshot), snapshot, nil
}
