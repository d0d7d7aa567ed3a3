package output

import (
	"strings"
	"time"

	"loom/internal/stages"
)

// Status represents the overall lifecycle of an output.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRendered   Status = "rendered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusDraft,
	StatusInProgress,
	StatusCompleted,
	StatusRendered,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known output statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// GateStatus represents the review state of one (output, stage) pair.
type GateStatus string

const (
	GateNotStarted    GateStatus = "not_started"
	GateGenerating    GateStatus = "generating"
	GatePendingReview GateStatus = "pending_review"
	GateApproved      GateStatus = "approved"
	GateRejected      GateStatus = "rejected"
	GateSkipped       GateStatus = "skipped"
	GateFailed        GateStatus = "failed"
)

var allGateStatuses = []GateStatus{
	GateNotStarted,
	GateGenerating,
	GatePendingReview,
	GateApproved,
	GateRejected,
	GateSkipped,
	GateFailed,
}

var gateStatusSet = func() map[GateStatus]struct{} {
	set := make(map[GateStatus]struct{}, len(allGateStatuses))
	for _, status := range allGateStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseGateStatus converts a string into a known GateStatus.
func ParseGateStatus(value string) (GateStatus, bool) {
	normalized := GateStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := gateStatusSet[normalized]
	return normalized, ok
}

// startableGateStatuses are the states a generation run may begin from.
// GENERATING is excluded (single-flight) and APPROVED requires a revert
// first.
var startableGateStatuses = []GateStatus{
	GateNotStarted,
	GatePendingReview,
	GateRejected,
	GateSkipped,
	GateFailed,
}

// Output is the unit of production persisted in SQLite: one video moving
// through the pipeline.
type Output struct {
	ID     string
	Title  string
	Status Status

	// Base configuration, preserved across pipeline resets.
	Language           string
	VoiceID            string
	SpeechRate         float64
	VisualStyle        string
	ScriptStyle        string
	Seed               int64
	MustInclude        string
	MustExclude        string
	MonetizationPlanID string

	// Artifact references filled in by later stages.
	BGMPath    string
	RenderPath string

	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Gate is the approval/status record for one (output, stage) pair.
// Exactly one row exists per pair; absent rows read as NOT_STARTED.
type Gate struct {
	OutputID     string
	Stage        stages.Stage
	Status       GateStatus
	Feedback     string
	FeedbackKind string
	// RunID identifies the generation invocation currently holding the
	// gate. Completions carrying a different run id are stale and must
	// be discarded.
	RunID      string
	ExecutedAt *time.Time
	ReviewedAt *time.Time
	UpdatedAt  time.Time
}

// Scene is one narrated segment of an output's script, the unit of
// per-scene asset generation.
type Scene struct {
	ID                string
	OutputID          string
	Idx               int
	Narration         string
	VisualDescription string
	AudioDescription  string
	ImagePath         string
	AudioPath         string
	SFXPath           string
	VideoPath         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProductKind tags the per-producer payload variants stored alongside an
// output. Each producer owns its own schema instead of one untyped blob.
type ProductKind string

const (
	ProductStoryOutline ProductKind = "story_outline"
	ProductWriterProse  ProductKind = "writer_prose"
	ProductRetentionQA  ProductKind = "retention_qa"
	ProductRender       ProductKind = "render"
	ProductSocialKit    ProductKind = "social_kit"
	ProductThumbnail    ProductKind = "thumbnail"
	ProductMonetization ProductKind = "monetization"
)

// Product is a typed stage payload keyed by (output, kind).
type Product struct {
	OutputID  string
	Kind      ProductKind
	Payload   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Execution is one append-only pipeline log entry for an output.
type Execution struct {
	ID        int64
	OutputID  string
	Step      string
	Status    string
	Message   string
	CreatedAt time.Time
}

// Cost records spend for one generation call.
type Cost struct {
	ID        int64
	OutputID  string
	Stage     stages.Stage
	Provider  string
	AmountUSD float64
	Detail    string
	CreatedAt time.Time
}

// HealthSummary describes aggregated output counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Draft      int
	InProgress int
	Completed  int
	Failed     int
}

// IsProcessing reports whether the output status reflects an in-flight
// render.
func (o Output) IsProcessing() bool {
	return o.Status == StatusInProgress
}

// IsTerminal reports whether the output reached a final state.
func (o Output) IsTerminal() bool {
	switch o.Status {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}
