package main

import (
	"fmt"
	"strconv"
	"strings"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/ipc"
)

func daemonStatusLines(status *ipc.StatusResponse, colorize bool) []string {
	if status == nil {
		return []string{renderStatusLine("Daemon", statusError, "Status unavailable", colorize)}
	}
	lines := make([]string, 0, 3)
	if status.Running {
		detail := "Running"
		if status.PID > 0 {
			detail = fmt.Sprintf("Running (pid %d)", status.PID)
		}
		lines = append(lines, renderStatusLine("Daemon", statusOK, detail, colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	if status.DatabasePath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	}
	return lines
}

func providerStatusLines(cfg *config.Config, colorize bool) []string {
	if cfg == nil {
		return []string{renderStatusLine("Providers", statusInfo, "Unknown", colorize)}
	}
	lines := make([]string, 0, 6)
	lines = append(lines, llmStatusLine(cfg.GetLLM(), colorize))
	lines = append(lines, mediaProviderLine("Speech", cfg.Speech, colorize))
	lines = append(lines, mediaProviderLine("Images", cfg.Image, colorize))
	lines = append(lines, mediaProviderLine("Motion", cfg.Motion, colorize))
	lines = append(lines, mediaProviderLine("Music", cfg.Music, colorize))
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		lines = append(lines, renderStatusLine("Notifications", statusInfo, "Disabled (no ntfy topic)", colorize))
	} else {
		lines = append(lines, renderStatusLine("Notifications", statusOK, fmt.Sprintf("ntfy topic %q", cfg.Notifications.NtfyTopic), colorize))
	}
	return lines
}

func llmStatusLine(llm config.LLMConfig, colorize bool) string {
	if strings.TrimSpace(llm.APIKey) == "" {
		return renderStatusLine("LLM", statusWarn, "Missing API key (text stages blocked)", colorize)
	}
	detail := "Ready"
	if llm.Model != "" {
		detail = fmt.Sprintf("Ready (model: %s)", llm.Model)
	}
	return renderStatusLine("LLM", statusOK, detail, colorize)
}

func mediaProviderLine(label string, provider config.MediaProvider, colorize bool) string {
	if strings.TrimSpace(provider.APIKey) == "" {
		return renderStatusLine(label, statusWarn, "Not configured", colorize)
	}
	detail := "Ready"
	if provider.Model != "" {
		detail = fmt.Sprintf("Ready (model: %s)", provider.Model)
	}
	return renderStatusLine(label, statusOK, detail, colorize)
}

func buildHealthRows(health api.HealthView) [][]string {
	if health.Total == 0 {
		return nil
	}
	rows := [][]string{
		{"Draft", strconv.Itoa(health.Draft)},
		{"In Progress", strconv.Itoa(health.InProgress)},
		{"Completed", strconv.Itoa(health.Completed)},
		{"Failed", strconv.Itoa(health.Failed)},
		{"Total", strconv.Itoa(health.Total)},
	}
	return rows
}

func buildStaleRunRows(runs []api.StaleRunView) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{run.OutputID, run.Stage, run.ExecutedAt})
	}
	return rows
}
