package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"loom/internal/api"
)

func buildOutputListRows(outputs []api.OutputSummary) [][]string {
	rows := make([][]string, 0, len(outputs))
	for _, out := range outputs {
		rows = append(rows, []string{out.ID, out.Title, out.Status, out.CreatedAt})
	}
	return rows
}

func buildGateRows(gates []api.GateView) [][]string {
	rows := make([][]string, 0, len(gates))
	for _, gate := range gates {
		feedback := gate.Feedback
		if gate.FeedbackKind != "" {
			feedback = strings.TrimSpace(fmt.Sprintf("[%s] %s", gate.FeedbackKind, feedback))
		}
		rows = append(rows, []string{gate.Label, gate.Status, feedback})
	}
	return rows
}

func buildSceneRows(scenes []api.SceneView) [][]string {
	rows := make([][]string, 0, len(scenes))
	for _, scene := range scenes {
		rows = append(rows, []string{
			strconv.Itoa(scene.Index),
			truncate(scene.Narration, 60),
			assetMarks(scene),
		})
	}
	return rows
}

func buildCostRows(costs []api.CostEntry) [][]string {
	rows := make([][]string, 0, len(costs))
	for _, cost := range costs {
		rows = append(rows, []string{
			cost.Stage,
			cost.Provider,
			fmt.Sprintf("%.4f", cost.AmountUSD),
			cost.Detail,
		})
	}
	return rows
}

func buildExecutionRows(entries []api.ExecutionEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{entry.Step, entry.Status, truncate(entry.Message, 60), entry.CreatedAt})
	}
	return rows
}

func renderOutputDetail(w io.Writer, detail api.OutputDetail, colorize bool) {
	for _, line := range renderSectionHeader(detail.Title, colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderStatusLine("ID", statusInfo, detail.ID, colorize))
	fmt.Fprintln(w, renderStatusLine("Status", outputStatusKind(detail.Status), detail.Status, colorize))
	fmt.Fprintln(w, renderStatusLine("Current stage", currentStageKind(detail.Current), currentStageText(detail.Current), colorize))
	if detail.SceneCount > 0 {
		fmt.Fprintln(w, renderStatusLine("Scenes", statusInfo, strconv.Itoa(detail.SceneCount), colorize))
	}
	if detail.RenderPath != "" {
		fmt.Fprintln(w, renderStatusLine("Render", statusOK, detail.RenderPath, colorize))
	}
	if detail.ErrorMessage != "" {
		fmt.Fprintln(w, renderStatusLine("Error", statusError, detail.ErrorMessage, colorize))
	}
	if detail.CostTotalUSD > 0 {
		fmt.Fprintln(w, renderStatusLine("Spend", statusInfo, fmt.Sprintf("$%.4f", detail.CostTotalUSD), colorize))
	}

	fmt.Fprintln(w)
	table := renderTable(
		[]string{"Stage", "Gate", "Feedback"},
		buildGateRows(detail.Gates),
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	)
	fmt.Fprintln(w, table)

	if len(detail.Scenes) > 0 {
		fmt.Fprintln(w)
		table := renderTable(
			[]string{"#", "Narration", "Assets"},
			buildSceneRows(detail.Scenes),
			[]columnAlignment{alignRight, alignLeft, alignLeft},
		)
		fmt.Fprintln(w, table)
	}
}

func currentStageText(current api.CurrentStageView) string {
	switch {
	case current.Blocked:
		return "Blocked (see gate feedback)"
	case current.Final:
		return "Pipeline complete"
	case current.Label != "":
		return current.Label
	default:
		return current.Stage
	}
}

func currentStageKind(current api.CurrentStageView) statusKind {
	switch {
	case current.Blocked:
		return statusError
	case current.Final:
		return statusOK
	default:
		return statusInfo
	}
}

func outputStatusKind(status string) statusKind {
	switch status {
	case "completed", "rendered":
		return statusOK
	case "failed", "cancelled":
		return statusError
	case "in_progress":
		return statusWarn
	default:
		return statusInfo
	}
}

func assetMarks(scene api.SceneView) string {
	marks := make([]string, 0, 3)
	if scene.ImagePath != "" {
		marks = append(marks, "image")
	}
	if scene.AudioPath != "" {
		marks = append(marks, "audio")
	}
	if scene.VideoPath != "" {
		marks = append(marks, "video")
	}
	if len(marks) == 0 {
		return "-"
	}
	return strings.Join(marks, ", ")
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
