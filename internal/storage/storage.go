// Package storage persists export artifacts to a durable store.
//
// Local disk is the default; S3 is used in deployed environments. Both
// backends serve the same bytes back for re-downloads.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ignite/listkeeper/internal/config"
)

// ArtifactStore writes and re-serves export artifacts.
type ArtifactStore interface {
	// Put writes the artifact and returns its storage path.
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	// Get opens a previously written artifact by its storage path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes an artifact.
	Delete(ctx context.Context, path string) error
}

// New creates the store selected by the configuration.
func New(ctx context.Context, cfg config.StorageConfig) (ArtifactStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.LocalPath)
	case "s3":
		return NewS3Store(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// LocalStore keeps artifacts on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes the artifact under the store root.
func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	path := filepath.Join(s.root, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating artifact: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return path, nil
}

// Get opens an artifact for reading.
func (s *LocalStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	return f, nil
}

// Delete removes an artifact.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	return os.Remove(path)
}
