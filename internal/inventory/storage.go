package inventory

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds the original captured images so the review screen can
// display them. Captures are deleted on retake or once the session is
// committed and gone.
type Storage interface {
	// Save stores a capture and returns its path.
	Save(filename string, data []byte) (string, error)

	// Get retrieves a capture by path.
	Get(path string) ([]byte, error)

	// Delete removes a capture.
	Delete(path string) error
}

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the capture directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save stores a capture.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	return filename, nil
}

// Get retrieves a capture.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	return data, nil
}

// Delete removes a capture.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting capture: %w", err)
	}
	return nil
}
