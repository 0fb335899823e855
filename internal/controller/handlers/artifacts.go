package handlers

import (
	"errors"
	"mime"
	"net/http"

	"testplane/internal/artifacts"
	"testplane/internal/store"
)

// GetArtifact handles GET /runs/{id}/artifacts/{kind}.
// Remote storage answers with a redirect to a presigned URL; local storage
// streams the file.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(r)
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	kind := artifacts.Kind(r.PathValue("kind"))
	if kind != artifacts.KindVideo && kind != artifacts.KindScreenshot {
		h.httpError(w, "Unknown artifact kind", http.StatusNotFound)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Run not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	name, key := run.Artifacts.VideoName, run.Artifacts.VideoKey
	if kind == artifacts.KindScreenshot {
		name, key = run.Artifacts.ScreenshotName, run.Artifacts.ScreenshotKey
	}
	if name == nil || *name == "" {
		h.httpError(w, "Artifact not found", http.StatusNotFound)
		return
	}

	loc, err := h.artifacts.Locate(ctx, kind, run.ID, *name, key)
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactNotFound) {
			h.httpError(w, "Artifact not found", http.StatusNotFound)
			return
		}
		h.log(r).Error("failed to locate artifact", "run_id", run.ID, "kind", kind, "error", err)
		h.httpError(w, "Failed to locate artifact", http.StatusInternalServerError)
		return
	}

	if loc.URL != "" {
		http.Redirect(w, r, loc.URL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", loc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": loc.Filename}))
	http.ServeFile(w, r, loc.Path)
}
