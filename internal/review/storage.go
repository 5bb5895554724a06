package review

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds the original estimate documents. A review keeps only the key
// returned by Save; Analyze reads the bytes back through Get on every run.
type Storage interface {
	// Save stores an uploaded estimate under filename and returns the key to
	// record in DocumentRef.Key
	Save(filename string, data []byte) (string, error)

	// Get returns the estimate bytes for a DocumentRef key
	Get(key string) ([]byte, error)

	// Delete removes an estimate once its review is gone or its upload failed
	Delete(key string) error
}

// LocalStorage keeps estimates as flat files in one directory, named by the
// key (review ID plus sanitized filename).
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the estimates directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating estimates directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// path resolves key inside basePath. Keys that would escape it are rejected.
func (l *LocalStorage) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(key) {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	return filepath.Join(l.basePath, key), nil
}

// Save writes the estimate file; the key is the filename itself
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := l.path(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing estimate %s: %w", filename, err)
	}
	return filename, nil
}

// Get reads an estimate back for extraction or download
func (l *LocalStorage) Get(key string) ([]byte, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading estimate %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an estimate file
func (l *LocalStorage) Delete(key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting estimate %s: %w", key, err)
	}
	return nil
}
