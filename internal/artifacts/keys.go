// Package artifacts stores and serves the video and screenshot a test run
// leaves behind.
package artifacts

import (
	"path/filepath"
	"strconv"
)

// Kind distinguishes the two artifacts a run can produce.
type Kind string

const (
	KindVideo      Kind = "video"
	KindScreenshot Kind = "screenshot"
)

func (k Kind) dir() string {
	if k == KindScreenshot {
		return "screenshots"
	}
	return "videos"
}

// ContentType is the media type the artifact is stored and served with.
func (k Kind) ContentType() string {
	if k == KindScreenshot {
		return "image/png"
	}
	return "video/webm"
}

// ObjectKey returns the stable storage key, e.g. videos/42/abc.webm.
func ObjectKey(kind Kind, runID int64, name string) string {
	return kind.dir() + "/" + strconv.FormatInt(runID, 10) + "/" + name
}

// RunDir is the per-run directory an engine writes artifacts of kind into.
func RunDir(root string, kind Kind, runID int64) string {
	return filepath.Join(root, kind.dir(), strconv.FormatInt(runID, 10))
}

// LocalPath is the well-known location of an artifact under root.
func LocalPath(root string, kind Kind, runID int64, name string) string {
	return filepath.Join(RunDir(root, kind, runID), name)
}
