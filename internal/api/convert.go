package api

import (
	"time"

	"loom/internal/output"
	"loom/internal/resolve"
	"loom/internal/stages"
)

// FromOutput converts an output record to its summary representation.
func FromOutput(out *output.Output) OutputSummary {
	if out == nil {
		return OutputSummary{}
	}
	dto := OutputSummary{
		ID:       out.ID,
		Title:    out.Title,
		Status:   string(out.Status),
		Language: out.Language,
	}
	if !out.CreatedAt.IsZero() {
		dto.CreatedAt = formatTime(out.CreatedAt)
	}
	if !out.UpdatedAt.IsZero() {
		dto.UpdatedAt = formatTime(out.UpdatedAt)
	}
	return dto
}

// FromOutputs converts a slice of output records into summaries.
func FromOutputs(outs []*output.Output) []OutputSummary {
	if len(outs) == 0 {
		return nil
	}
	dtos := make([]OutputSummary, 0, len(outs))
	for _, out := range outs {
		dtos = append(dtos, FromOutput(out))
	}
	return dtos
}

// FromGates flattens a gate map into pipeline order.
func FromGates(gates map[stages.Stage]*output.Gate) []GateView {
	views := make([]GateView, 0, len(gates))
	for _, desc := range stages.All() {
		gate, ok := gates[desc.Stage]
		if !ok {
			continue
		}
		view := GateView{
			Stage:        string(desc.Stage),
			Label:        desc.Label,
			Status:       string(gate.Status),
			Feedback:     gate.Feedback,
			FeedbackKind: gate.FeedbackKind,
		}
		if gate.ExecutedAt != nil {
			view.ExecutedAt = formatTime(*gate.ExecutedAt)
		}
		if gate.ReviewedAt != nil {
			view.ReviewedAt = formatTime(*gate.ReviewedAt)
		}
		views = append(views, view)
	}
	return views
}

// FromScenes converts scene records in index order.
func FromScenes(scenes []output.Scene) []SceneView {
	if len(scenes) == 0 {
		return nil
	}
	views := make([]SceneView, 0, len(scenes))
	for _, scene := range scenes {
		views = append(views, SceneView{
			Index:             scene.Idx,
			Narration:         scene.Narration,
			VisualDescription: scene.VisualDescription,
			AudioDescription:  scene.AudioDescription,
			ImagePath:         scene.ImagePath,
			AudioPath:         scene.AudioPath,
			VideoPath:         scene.VideoPath,
		})
	}
	return views
}

// FromCurrent converts the resolver's result.
func FromCurrent(current resolve.Current) CurrentStageView {
	view := CurrentStageView{Final: current.Final, Blocked: current.Blocked}
	if current.Stage != "" {
		view.Stage = string(current.Stage)
		view.Label = stages.Label(current.Stage)
	}
	return view
}

// FromExecutions converts pipeline log rows.
func FromExecutions(entries []output.Execution) []ExecutionEntry {
	if len(entries) == 0 {
		return nil
	}
	views := make([]ExecutionEntry, 0, len(entries))
	for _, entry := range entries {
		view := ExecutionEntry{
			Step:    entry.Step,
			Status:  entry.Status,
			Message: entry.Message,
		}
		if !entry.CreatedAt.IsZero() {
			view.CreatedAt = formatTime(entry.CreatedAt)
		}
		views = append(views, view)
	}
	return views
}

// FromCosts converts cost ledger rows.
func FromCosts(costs []output.Cost) []CostEntry {
	if len(costs) == 0 {
		return nil
	}
	views := make([]CostEntry, 0, len(costs))
	for _, cost := range costs {
		view := CostEntry{
			Stage:     string(cost.Stage),
			Provider:  cost.Provider,
			AmountUSD: cost.AmountUSD,
			Detail:    cost.Detail,
		}
		if !cost.CreatedAt.IsZero() {
			view.CreatedAt = formatTime(cost.CreatedAt)
		}
		views = append(views, view)
	}
	return views
}

// FromHealth converts the aggregated status counts.
func FromHealth(summary output.HealthSummary) HealthView {
	return HealthView{
		Total:      summary.Total,
		Draft:      summary.Draft,
		InProgress: summary.InProgress,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
	}
}

// FromStaleGates converts stale run records.
func FromStaleGates(gates []output.StaleGate) []StaleRunView {
	if len(gates) == 0 {
		return nil
	}
	views := make([]StaleRunView, 0, len(gates))
	for _, gate := range gates {
		views = append(views, StaleRunView{
			OutputID:   gate.OutputID,
			Stage:      string(gate.Stage),
			ExecutedAt: formatTime(gate.ExecutedAt),
		})
	}
	return views
}

func formatTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}
