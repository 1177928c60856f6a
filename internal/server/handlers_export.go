package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/report"
)

// exportProject builds and encodes the export document for the project in
// the request path. ?format= selects json (default) or yaml.
func (h *Handlers) exportProject(r *http.Request) (model.Project, []byte, string, string, error) {
	format := r.URL.Query().Get("format")
	if !report.ValidFormat(format) {
		return model.Project{}, nil, "", "", fmt.Errorf("%w: %q", report.ErrUnknownFormat, format)
	}
	p, err := h.designs.GetProject(r.PathValue("id"))
	if err != nil {
		return model.Project{}, nil, "", "", err
	}
	data, contentType, err := report.Encode(report.BuildExport(p, h.now().UTC()), format)
	if err != nil {
		return model.Project{}, nil, "", "", err
	}
	return p, data, contentType, report.FileName(p.SystemDesign.ProjectName, format), nil
}

// HandleExport handles GET /v1/projects/{id}/export as a file download.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	_, data, contentType, fileName, err := h.exportProject(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleArchiveExport handles POST /v1/projects/{id}/export/archive. The
// export is written to object storage and a presigned download URL returned.
func (h *Handlers) HandleArchiveExport(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeExportFailed, "export archive is not configured")
		return
	}
	p, data, contentType, fileName, err := h.exportProject(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	archived, err := h.archive.Put(r.Context(), p.ID, fileName, contentType, data, h.now().UTC())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.ArchiveResponse{
		Key:       archived.Key,
		URL:       archived.URL,
		ExpiresAt: archived.ExpiresAt,
	})
}
