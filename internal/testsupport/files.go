package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteArtifact creates the target path (and parents) with the given
// content, standing in for a generated media file in tests.
func WriteArtifact(t testing.TB, path string, content []byte) {
	t.Helper()

	if len(content) == 0 {
		content = []byte{0x42}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
