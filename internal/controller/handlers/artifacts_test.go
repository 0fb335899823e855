package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"testplane/internal/artifacts"
	"testplane/internal/store"
)

func artifactRequest(kind string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/runs/21/artifacts/"+kind, nil)
	req.SetPathValue("id", "21")
	req.SetPathValue("kind", kind)
	return req
}

func runWithArtifacts() *store.TestRun {
	return &store.TestRun{
		ID:     21,
		Status: store.RunStatusFailed,
		Artifacts: store.Artifacts{
			VideoName:      strPtr("v.webm"),
			VideoKey:       strPtr("videos/21/v.webm"),
			ScreenshotName: strPtr("s.png"),
		},
	}
}

func TestGetArtifact_Redirect(t *testing.T) {
	h, _, loc := newTestHandlers(&mockStore{run: runWithArtifacts()})
	loc.loc = artifacts.Location{URL: "https://minio.local/videos/21/v.webm?sig=1", Filename: "v.webm"}

	rr := httptest.NewRecorder()
	h.GetArtifact(rr, artifactRequest("video"))

	if rr.Code != http.StatusFound {
		t.Fatalf("got status %d, want 302", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != loc.loc.URL {
		t.Errorf("Location = %q", got)
	}
	if loc.gotKind != artifacts.KindVideo || loc.gotName != "v.webm" {
		t.Errorf("locate called with %s %s", loc.gotKind, loc.gotName)
	}
	if loc.gotStored == nil || *loc.gotStored != "videos/21/v.webm" {
		t.Errorf("stored key not passed: %v", loc.gotStored)
	}
}

func TestGetArtifact_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	h, _, loc := newTestHandlers(&mockStore{run: runWithArtifacts()})
	loc.loc = artifacts.Location{Path: path, Filename: "s.png", ContentType: "image/png"}

	rr := httptest.NewRecorder()
	h.GetArtifact(rr, artifactRequest("screenshot"))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rr.Body.String() != "png-bytes" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if loc.gotStored != nil {
		t.Errorf("screenshot has no stored key, got %v", *loc.gotStored)
	}
}

func TestGetArtifact_NotFound(t *testing.T) {
	tests := []struct {
		name string
		kind string
		run  *store.TestRun
		err  error
	}{
		{name: "Unknown kind", kind: "trace", run: runWithArtifacts()},
		{name: "Missing run", kind: "video"},
		{name: "No artifact recorded", kind: "video", run: &store.TestRun{ID: 21}},
		{name: "Locator miss", kind: "video", run: runWithArtifacts(), err: artifacts.ErrArtifactNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, loc := newTestHandlers(&mockStore{run: tt.run})
			loc.err = tt.err

			rr := httptest.NewRecorder()
			h.GetArtifact(rr, artifactRequest(tt.kind))

			if rr.Code != http.StatusNotFound {
				t.Errorf("got status %d, want 404", rr.Code)
			}
		})
	}
}

func TestGetArtifact_LocatorError(t *testing.T) {
	h, _, loc := newTestHandlers(&mockStore{run: runWithArtifacts()})
	loc.err = errors.New("minio down")

	rr := httptest.NewRecorder()
	h.GetArtifact(rr, artifactRequest("video"))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", rr.Code)
	}
}
