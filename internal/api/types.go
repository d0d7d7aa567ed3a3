package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// OutputSummary describes an output in list views.
type OutputSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Language  string `json:"language,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// GateView is the review state of one stage gate.
type GateView struct {
	Stage        string `json:"stage"`
	Label        string `json:"label"`
	Status       string `json:"status"`
	Feedback     string `json:"feedback,omitempty"`
	FeedbackKind string `json:"feedbackKind,omitempty"`
	ExecutedAt   string `json:"executedAt,omitempty"`
	ReviewedAt   string `json:"reviewedAt,omitempty"`
}

// SceneView is one narrated segment with its generated asset paths.
type SceneView struct {
	Index             int    `json:"index"`
	Narration         string `json:"narration"`
	VisualDescription string `json:"visualDescription,omitempty"`
	AudioDescription  string `json:"audioDescription,omitempty"`
	ImagePath         string `json:"imagePath,omitempty"`
	AudioPath         string `json:"audioPath,omitempty"`
	VideoPath         string `json:"videoPath,omitempty"`
}

// CurrentStageView is the resolver's answer for an output.
type CurrentStageView struct {
	Stage   string `json:"stage,omitempty"`
	Label   string `json:"label,omitempty"`
	Final   bool   `json:"final"`
	Blocked bool   `json:"blocked"`
}

// OutputDetail is the full picture of one output.
type OutputDetail struct {
	OutputSummary
	Current      CurrentStageView `json:"current"`
	Gates        []GateView       `json:"gates"`
	Scenes       []SceneView      `json:"scenes,omitempty"`
	SceneCount   int              `json:"sceneCount"`
	BGMPath      string           `json:"bgmPath,omitempty"`
	RenderPath   string           `json:"renderPath,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CompletedAt  string           `json:"completedAt,omitempty"`
	CostTotalUSD float64          `json:"costTotalUsd"`
}

// ExecutionEntry is one row of the append-only pipeline log.
type ExecutionEntry struct {
	Step      string `json:"step"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// CostEntry records spend for one generation call.
type CostEntry struct {
	Stage     string  `json:"stage"`
	Provider  string  `json:"provider"`
	AmountUSD float64 `json:"amountUsd"`
	Detail    string  `json:"detail,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// HealthView aggregates output counts per lifecycle state.
type HealthView struct {
	Total      int `json:"total"`
	Draft      int `json:"draft"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// StaleRunView flags a generation run stuck past the stale timeout.
type StaleRunView struct {
	OutputID   string `json:"outputId"`
	Stage      string `json:"stage"`
	ExecutedAt string `json:"executedAt"`
}

// CreateOutputRequest carries the base configuration for a new output.
type CreateOutputRequest struct {
	Title              string  `json:"title"`
	Language           string  `json:"language,omitempty"`
	VoiceID            string  `json:"voiceId,omitempty"`
	SpeechRate         float64 `json:"speechRate,omitempty"`
	VisualStyle        string  `json:"visualStyle,omitempty"`
	ScriptStyle        string  `json:"scriptStyle,omitempty"`
	Seed               int64   `json:"seed,omitempty"`
	MustInclude        string  `json:"mustInclude,omitempty"`
	MustExclude        string  `json:"mustExclude,omitempty"`
	MonetizationPlanID string  `json:"monetizationPlanId,omitempty"`
}

// OutputListResponse wraps a collection of outputs.
type OutputListResponse struct {
	Outputs []OutputSummary `json:"outputs"`
}

// OutputDetailResponse wraps a single output.
type OutputDetailResponse struct {
	Output OutputDetail `json:"output"`
}
