package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalStorage keeps uploaded media on the local filesystem.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
}

// NewLocalStorage creates the base directory when needed.
func NewLocalStorage(basePath string, log zerolog.Logger) (*LocalStorage, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, fmt.Errorf("local storage path is empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	logger := log.With().Str("component", "local-storage").Logger()
	logger.Info().Str("path", basePath).Msg("local storage initialized")

	return &LocalStorage{basePath: basePath, log: logger}, nil
}

// Upload writes body to key, replacing any existing file.
func (l *LocalStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	fullPath, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().Str("key", key).Int64("bytes", written).Msg("file stored")
	return nil
}

// Download opens the file at key. The content type is not tracked locally.
func (l *LocalStorage) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", key, err)
	}
	return file, "", nil
}

// Delete removes the file at key. A missing file yields an fs.ErrNotExist error.
func (l *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// resolve maps a storage key onto the base directory and refuses keys that escape it.
func (l *LocalStorage) resolve(key string) (string, error) {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.basePath, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return fullPath, nil
}
