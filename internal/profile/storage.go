package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore persists normalized image artifacts as opaque blobs addressed
// by a generated name. The returned reference is what gets stored on the
// account row.
type BlobStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Remove(ctx context.Context, ref string) error
}

// DiskStore keeps blobs as files under a base directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

var _ BlobStore = (*DiskStore)(nil)

// Save writes the blob under a fresh uuid-based filename and returns the
// filename as the stored reference.
func (s *DiskStore) Save(ctx context.Context, data []byte) (string, error) {
	name := uuid.NewString() + ".jpg"
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return name, nil
}

// Remove deletes a stored blob. A missing file is not an error: the
// reference may already have been cleaned up.
func (s *DiskStore) Remove(ctx context.Context, ref string) error {
	// Reject anything that would escape the base directory.
	if ref != filepath.Base(ref) {
		return fmt.Errorf("invalid blob reference: %q", ref)
	}

	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}
