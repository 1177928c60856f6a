package server

import (
	"net/http"
)

// HandleListProjects handles GET /v1/projects?q=.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	list := h.designs.ListProjects(r.URL.Query().Get("q"))
	writeList(w, r, list, len(list))
}

// HandleGetProject handles GET /v1/projects/{id}.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.designs.GetProject(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleDeleteProject handles DELETE /v1/projects/{id}.
func (h *Handlers) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.designs.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleProjectVersions handles GET /v1/projects/{id}/versions.
func (h *Handlers) HandleProjectVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.designs.Versions(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeList(w, r, versions, len(versions))
}

// HandleProjectReport handles GET /v1/projects/{id}/report.
func (h *Handlers) HandleProjectReport(w http.ResponseWriter, r *http.Request) {
	p, err := h.designs.GetProject(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.reports.Render(p))
}
