package artifacts

import (
	"context"
	"fmt"
)

const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// NewStorage builds the backend selected by name.
func NewStorage(ctx context.Context, backend, root string, minioCfg MinioConfig) (Storage, error) {
	switch backend {
	case "", BackendLocal:
		return NewLocalStorage(root)
	case BackendMinio:
		s, err := NewMinioStorage(minioCfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", backend)
	}
}
