package ipc

import "loom/internal/api"

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/pipeline status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"database_path"`
	LockPath     string             `json:"lock_path"`
	Health       api.HealthView     `json:"health"`
	StaleRuns    []api.StaleRunView `json:"stale_runs,omitempty"`
}

// OutputCreateRequest registers a new output.
type OutputCreateRequest struct {
	Output api.CreateOutputRequest `json:"output"`
}

// OutputCreateResponse returns the created output.
type OutputCreateResponse struct {
	Output api.OutputSummary `json:"output"`
}

// OutputListRequest filters outputs by status.
type OutputListRequest struct {
	Statuses []string `json:"statuses"`
}

// OutputListResponse contains output summaries.
type OutputListResponse struct {
	Outputs []api.OutputSummary `json:"outputs"`
}

// OutputDescribeRequest fetches a single output.
type OutputDescribeRequest struct {
	ID string `json:"id"`
}

// OutputDescribeResponse contains the full output view.
type OutputDescribeResponse struct {
	Output api.OutputDetail `json:"output"`
}

// OutputDeleteRequest removes an output.
type OutputDeleteRequest struct {
	ID string `json:"id"`
}

// OutputDeleteResponse confirms removal.
type OutputDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// StageStartRequest begins generation for a stage.
type StageStartRequest struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
}

// StageStartResponse reports whether the run was accepted. A false
// value means another run already holds the gate.
type StageStartResponse struct {
	Accepted bool `json:"accepted"`
}

// StageApproveRequest approves a pending gate.
type StageApproveRequest struct {
	ID       string `json:"id"`
	Stage    string `json:"stage"`
	Feedback string `json:"feedback"`
}

// StageApproveResponse confirms approval.
type StageApproveResponse struct {
	Approved bool `json:"approved"`
}

// StageRejectRequest rejects a gate and restarts generation with the
// reviewer's feedback.
type StageRejectRequest struct {
	ID       string `json:"id"`
	Stage    string `json:"stage"`
	Feedback string `json:"feedback"`
}

// StageRejectResponse reports whether regeneration started.
type StageRejectResponse struct {
	Restarted bool `json:"restarted"`
}

// StageRevertRequest rolls approvals back to the target stage.
type StageRevertRequest struct {
	ID          string `json:"id"`
	TargetStage string `json:"target_stage"`
}

// StageRevertResponse lists the gates that were cleared.
type StageRevertResponse struct {
	Reverted []string `json:"reverted"`
}

// CancelStaleRequest cancels a generation run stuck past the timeout.
type CancelStaleRequest struct {
	ID string `json:"id"`
}

// CancelStaleResponse lists the gates that were reset.
type CancelStaleResponse struct {
	Cancelled []string `json:"cancelled"`
}

// ExecutionsRequest fetches pipeline log entries for an output.
type ExecutionsRequest struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

// ExecutionsResponse returns the most recent log entries.
type ExecutionsResponse struct {
	Entries []api.ExecutionEntry `json:"entries"`
}

// CostsRequest fetches the spend ledger for an output.
type CostsRequest struct {
	ID string `json:"id"`
}

// CostsResponse returns the ledger rows.
type CostsResponse struct {
	Costs []api.CostEntry `json:"costs"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
