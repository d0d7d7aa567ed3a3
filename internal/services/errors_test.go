package services_test

import (
	"errors"
	"strings"
	"testing"

	"loom/internal/services"
)

func TestWrapIncludesStageContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProvider, "images", "generate", "scene 3", base)
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped base error")
	}
	msg := err.Error()
	for _, fragment := range []string{"images", "generate", "scene 3", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("error message %q missing %q", msg, fragment)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "audio", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestFeedbackKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrContentRestricted, "images", "generate", "", nil), "CONTENT_RESTRICTED"},
		{services.Wrap(services.ErrProvider, "motion", "generate", "", nil), "PROVIDER"},
		{services.Wrap(services.ErrValidation, "script", "approve", "", nil), "VALIDATION"},
		{services.Wrap(services.ErrStorage, "script", "persist", "", nil), "STORAGE"},
		{services.Wrap(services.ErrTimeout, "render", "wait", "", nil), "TIMEOUT"},
		{errors.New("whatever"), "TRANSIENT"},
	}
	for _, tc := range cases {
		if got := services.FeedbackKind(tc.err); got != tc.want {
			t.Fatalf("FeedbackKind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestContentRestrictedIsProviderError(t *testing.T) {
	if !errors.Is(services.ErrContentRestricted, services.ErrProvider) {
		t.Fatal("content restricted must classify as a provider error")
	}
}
