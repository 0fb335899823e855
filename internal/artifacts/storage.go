package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Storage is a backend that holds artifact objects under their keys.
type Storage interface {
	// IsLocal reports whether objects already live on the local filesystem.
	IsLocal() bool
	PutFile(ctx context.Context, key, localPath, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// LocalPath resolves key to an existing file, if the backend has one.
	LocalPath(key string) (string, bool)
	// PresignGet returns a short-lived download URL, if the backend supports it.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
}

// LocalStorage keeps objects as files below a root directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifacts root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

func (s *LocalStorage) IsLocal() bool { return true }

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStorage) PutFile(ctx context.Context, key, localPath, contentType string) error {
	dst := s.path(key)
	if filepath.Clean(localPath) == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalStorage) LocalPath(key string) (string, bool) {
	p := s.path(key)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

func (s *LocalStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "", false, nil
}
