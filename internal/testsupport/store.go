package testsupport

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/output"
	"loom/internal/stages"
)

// MustOpenStore opens an output.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *output.Store {
	t.Helper()

	store, err := output.Open(cfg)
	if err != nil {
		t.Fatalf("output.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewOutput creates a draft output for tests using the provided store.
func NewOutput(t testing.TB, store *output.Store, title string) *output.Output {
	t.Helper()

	out, err := store.NewOutput(context.Background(), output.NewOutputParams{Title: title})
	if err != nil {
		t.Fatalf("store.NewOutput: %v", err)
	}
	return out
}

// ApproveStages marks the given stages APPROVED for an output.
func ApproveStages(t testing.TB, store *output.Store, outputID string, approved ...stages.Stage) {
	t.Helper()

	for _, stage := range approved {
		if err := store.SetGateStatus(context.Background(), outputID, stage, output.GateApproved, ""); err != nil {
			t.Fatalf("approve %s: %v", stage, err)
		}
	}
}
