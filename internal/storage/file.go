package storage

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

type fileStorage struct {
	config FileConfig
}

type FileConfig struct {
	// Directory resolves relative locations. Absolute locations are used as is.
	Directory string
}

// NewFileStorage creates a new file storage backend
func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}

	return &fileStorage{
		config: f,
	}, nil
}

func (a *fileStorage) Put(ctx context.Context, location string, data []byte) (string, error) {
	filePath := a.resolve(location)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", xerrors.Errorf("failed to create output directory: %w", err)
	}

	// Readers never observe a partially written image.
	f, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".*")
	if err != nil {
		return "", xerrors.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", xerrors.Errorf("failed to write file: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return "", xerrors.Errorf("failed to chmod file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", xerrors.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(f.Name(), filePath); err != nil {
		return "", xerrors.Errorf("failed to rename file: %w", err)
	}

	return filePath, nil
}

func (a *fileStorage) Get(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(a.resolve(location))
	if err != nil {
		return nil, xerrors.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

func (a *fileStorage) resolve(location string) string {
	if filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(a.config.Directory, location)
}
