package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks an illegal operation for the current gate
	// state. Surfaced synchronously, never retried automatically.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing output, gate, or artifact.
	ErrNotFound = errors.New("not found")
	// ErrProvider marks a failure reported by an external generation
	// provider. The stage may be retried by starting it again.
	ErrProvider = errors.New("provider error")
	// ErrContentRestricted marks a provider content-policy rejection.
	// Callers present it as "adjust the prompt and retry" rather than a
	// generic failure. It matches ErrProvider under errors.Is.
	ErrContentRestricted = fmt.Errorf("%w: content restricted", ErrProvider)
	// ErrStorage marks a gate store failure. All store writes are
	// idempotent upserts, so the operation is safe to retry.
	ErrStorage = errors.New("storage error")
	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks a failure with no better classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging
// it with the provided marker for later classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FeedbackKind maps a stage error to the classification persisted in the
// gate feedback so callers can render a specific user-facing message.
func FeedbackKind(err error) string {
	switch {
	case errors.Is(err, ErrContentRestricted):
		return "CONTENT_RESTRICTED"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrProvider):
		return "PROVIDER"
	case errors.Is(err, ErrStorage):
		return "STORAGE"
	default:
		return "TRANSIENT"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
