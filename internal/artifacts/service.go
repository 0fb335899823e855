package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultPresignTTL bounds how long a download link stays valid.
const DefaultPresignTTL = 30 * time.Minute

var ErrArtifactNotFound = errors.New("artifacts: artifact not found")

// Uploaded holds the object keys recorded on a run. A nil key means the
// artifact was not produced or could not be stored.
type Uploaded struct {
	VideoKey      *string
	ScreenshotKey *string
}

// Location tells a caller how to serve an artifact: redirect to URL when it is
// set, otherwise stream the file at Path.
type Location struct {
	URL         string
	Path        string
	Filename    string
	ContentType string
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Root is the directory the execution engine writes artifacts into.
	Root string
	// KeepLocal disables removal of local files after a remote upload.
	KeepLocal  bool
	PresignTTL time.Duration
}

// Service moves run artifacts from the local artifacts root into a Storage
// backend and resolves them again for download.
type Service struct {
	storage Storage
	cfg     ServiceConfig
	logger  *slog.Logger
}

func NewService(storage Storage, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{storage: storage, cfg: cfg, logger: logger}
}

// Root returns the local artifacts root.
func (s *Service) Root() string {
	return s.cfg.Root
}

// Upload stores the named artifacts of a run and returns their object keys.
//
// With a local backend nothing is copied; keys are computed only. With a
// remote backend each existing local file is uploaded under its stable key
// and then removed together with its empty parent directory. Upload is safe
// to repeat: when the local file is already gone but the object exists, the
// key is reported as uploaded.
func (s *Service) Upload(ctx context.Context, runID int64, videoName, screenshotName string) (Uploaded, error) {
	var out Uploaded
	var errs []error

	if videoName != "" {
		key, err := s.uploadOne(ctx, KindVideo, runID, videoName)
		out.VideoKey = key
		errs = append(errs, err)
	}
	if screenshotName != "" {
		key, err := s.uploadOne(ctx, KindScreenshot, runID, screenshotName)
		out.ScreenshotKey = key
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

func (s *Service) uploadOne(ctx context.Context, kind Kind, runID int64, name string) (*string, error) {
	key := ObjectKey(kind, runID, name)
	if s.storage.IsLocal() {
		return &key, nil
	}

	local := LocalPath(s.cfg.Root, kind, runID, name)
	if _, err := os.Stat(local); err != nil {
		exists, existsErr := s.storage.Exists(ctx, key)
		if existsErr != nil {
			return nil, fmt.Errorf("failed to check %s: %w", key, existsErr)
		}
		if exists {
			return &key, nil
		}
		return nil, nil
	}

	if err := s.storage.PutFile(ctx, key, local, kind.ContentType()); err != nil {
		return nil, err
	}
	s.logger.Info("artifact uploaded", "run_id", runID, "key", key)

	if !s.cfg.KeepLocal {
		// Cleanup is best effort once the object is stored.
		_ = os.Remove(local)
		_ = os.Remove(filepath.Dir(local))
	}
	return &key, nil
}

// Locate resolves an artifact for download. storedKey is the key recorded on
// the run, if any; otherwise the deterministic key is used.
func (s *Service) Locate(ctx context.Context, kind Kind, runID int64, name string, storedKey *string) (Location, error) {
	if name == "" {
		return Location{}, ErrArtifactNotFound
	}

	key := ObjectKey(kind, runID, name)
	if storedKey != nil && *storedKey != "" {
		key = *storedKey
	}
	loc := Location{Filename: name, ContentType: kind.ContentType()}

	url, ok, err := s.storage.PresignGet(ctx, key, s.cfg.PresignTTL)
	if err != nil {
		return Location{}, err
	}
	if ok {
		loc.URL = url
		return loc, nil
	}

	if p, ok := s.storage.LocalPath(key); ok {
		loc.Path = p
		return loc, nil
	}

	fallback := LocalPath(s.cfg.Root, kind, runID, name)
	if _, err := os.Stat(fallback); err == nil {
		loc.Path = fallback
		return loc, nil
	}

	return Location{}, ErrArtifactNotFound
}
