package stages

import (
	"fmt"
	"strings"
)

// Stage identifies one phase of the production pipeline.
type Stage string

const (
	StoryOutline Stage = "story_outline"
	Writer       Stage = "writer"
	Script       Stage = "script"
	RetentionQA  Stage = "retention_qa"
	Images       Stage = "images"
	Audio        Stage = "audio"
	BGM          Stage = "bgm"
	Motion       Stage = "motion"
	Render       Stage = "render"
)

// Descriptor carries static metadata about a stage.
type Descriptor struct {
	Stage Stage
	// Label is the human-facing name used by CLI and notifications.
	Label string
	// RequiresReview indicates the stage parks in PENDING_REVIEW after
	// generation instead of approving itself.
	RequiresReview bool
	// Optional stages may be bypassed by later pipeline progress.
	// Only the writer stage behaves this way: once scenes exist its gate
	// stops mattering.
	Optional bool
}

var ordered = []Descriptor{
	{Stage: StoryOutline, Label: "Outline", RequiresReview: true},
	{Stage: Writer, Label: "Writer", RequiresReview: true, Optional: true},
	{Stage: Script, Label: "Script", RequiresReview: true},
	{Stage: RetentionQA, Label: "Retention QA", RequiresReview: true},
	{Stage: Images, Label: "Images", RequiresReview: true},
	{Stage: Audio, Label: "Narration", RequiresReview: true},
	{Stage: BGM, Label: "Music", RequiresReview: true},
	{Stage: Motion, Label: "Motion", RequiresReview: true},
	{Stage: Render, Label: "Render", RequiresReview: true},
}

var byStage = func() map[Stage]int {
	index := make(map[Stage]int, len(ordered))
	for i, desc := range ordered {
		index[desc.Stage] = i
	}
	return index
}()

// All returns the ordered list of stage descriptors.
func All() []Descriptor {
	cp := make([]Descriptor, len(ordered))
	copy(cp, ordered)
	return cp
}

// Order returns the zero-based position of a stage in pipeline order.
// Unknown stages are a programming error.
func Order(stage Stage) int {
	idx, ok := byStage[stage]
	if !ok {
		panic(fmt.Sprintf("stages: unknown stage %q", stage))
	}
	return idx
}

// Describe returns the descriptor for a stage.
// Unknown stages are a programming error.
func Describe(stage Stage) Descriptor {
	return ordered[Order(stage)]
}

// Next returns the stage following the given one, or false when the stage
// is terminal.
func Next(stage Stage) (Stage, bool) {
	idx := Order(stage)
	if idx+1 >= len(ordered) {
		return "", false
	}
	return ordered[idx+1].Stage, true
}

// IsTerminal reports whether the stage is the last one in pipeline order.
func IsTerminal(stage Stage) bool {
	return Order(stage) == len(ordered)-1
}

// From returns the stages at or after the given stage in pipeline order.
func From(stage Stage) []Stage {
	idx := Order(stage)
	out := make([]Stage, 0, len(ordered)-idx)
	for _, desc := range ordered[idx:] {
		out = append(out, desc.Stage)
	}
	return out
}

// Parse converts a string into a known Stage. It accepts both the storage
// form ("retention_qa") and the label-ish form ("RETENTION_QA").
func Parse(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	if _, ok := byStage[normalized]; !ok {
		return "", false
	}
	return normalized, true
}

// Label returns the human-facing stage name.
func Label(stage Stage) string {
	return Describe(stage).Label
}
