package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileStore keeps documents as files below a root directory.
type FileStore struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewFileStore creates a store on the operating system file system.
func NewFileStore(root string, logger *zap.Logger) *FileStore {
	return NewFileStoreWithFs(afero.NewOsFs(), root, logger)
}

// NewFileStoreWithFs creates a store on fs. Tests pass an in-memory fs.
func NewFileStoreWithFs(fs afero.Fs, root string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{fs: fs, root: root, logger: logger}
}

// Path returns the file name used for name. Absolute names are kept.
func (s *FileStore) Path(name string) string {
	if filepath.IsAbs(name) || s.root == "" {
		return filepath.Clean(name)
	}
	return filepath.Join(s.root, name)
}

// Save writes data, creating missing directories.
func (s *FileStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.Path(name)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	if err := afero.WriteFile(s.fs, p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	s.logger.Debug("Wrote document", zap.String("path", p), zap.Int("size", len(data)))
	return nil
}

// Load reads the file stored under name.
func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.Path(name)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}
