package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/services"
	"loom/internal/textutil"
)

// ArtifactStore writes generated media to the configured artifact
// directory. Artifacts are laid out as <root>/<output-id>/<category>/
// and referenced by absolute path from scene and output records. Gate
// reverts never touch this store; only a full plan reset may orphan
// files, and those are cleaned up out of band.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates a store rooted at the given directory.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("%w: artifact directory required", services.ErrValidation)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &ArtifactStore{root: root}, nil
}

// Root returns the artifact root directory.
func (s *ArtifactStore) Root() string { return s.root }

// Save writes one artifact and returns its absolute path. An existing
// file at the same location is overwritten, which is what regeneration
// wants.
func (s *ArtifactStore) Save(outputID, category, filename string, data []byte) (string, error) {
	if outputID == "" || filename == "" {
		return "", fmt.Errorf("%w: output id and filename required", services.ErrValidation)
	}
	dir := filepath.Join(s.root, outputID, textutil.SanitizeToken(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create artifact dir: %v", services.ErrStorage, err)
	}
	name := textutil.SanitizeFileName(filepath.Base(filename))
	if name == "" {
		return "", fmt.Errorf("%w: artifact filename unusable after sanitizing", services.ErrValidation)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write artifact: %v", services.ErrStorage, err)
	}
	return path, nil
}

// Remove deletes every artifact recorded for an output. Called by the
// CLI when an output is deleted outright, never by reverts.
func (s *ArtifactStore) Remove(outputID string) error {
	if outputID == "" {
		return fmt.Errorf("%w: output id required", services.ErrValidation)
	}
	if err := os.RemoveAll(filepath.Join(s.root, outputID)); err != nil {
		return fmt.Errorf("%w: remove artifacts: %v", services.ErrStorage, err)
	}
	return nil
}
