package server

import (
	"net/http"

	"github.com/ashita-ai/archdoc/internal/model"
)

// HandleOpenView handles POST /v1/views.
func (h *Handlers) HandleOpenView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusCreated, h.designs.OpenView())
}

// HandleGetView handles GET /v1/views/{id}.
func (h *Handlers) HandleGetView(w http.ResponseWriter, r *http.Request) {
	snap, err := h.designs.View(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleCloseView handles DELETE /v1/views/{id}.
func (h *Handlers) HandleCloseView(w http.ResponseWriter, r *http.Request) {
	if err := h.designs.CloseView(r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOpenProject handles POST /v1/views/{id}/open.
func (h *Handlers) HandleOpenProject(w http.ResponseWriter, r *http.Request) {
	var req model.OpenProjectRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.ProjectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "project_id is required")
		return
	}
	snap, err := h.designs.OpenProject(r.PathValue("id"), req.ProjectID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleGenerate handles POST /v1/views/{id}/generate. The request blocks
// until the agent answers or the call is canceled through
// DELETE /v1/views/{id}/inflight.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var in model.Intake
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	snap, err := h.designs.Generate(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, snap)
}

// HandleRefine handles POST /v1/views/{id}/refine.
func (h *Handlers) HandleRefine(w http.ResponseWriter, r *http.Request) {
	var req model.RefineRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	snap, err := h.designs.Refine(r.Context(), r.PathValue("id"), req.Feedback)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleEditComponent handles PUT /v1/views/{id}/components/{component_id}.
// The component is matched by id, then by name.
func (h *Handlers) HandleEditComponent(w http.ResponseWriter, r *http.Request) {
	var c model.Component
	if err := decodeJSON(w, r, &c, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	snap, err := h.designs.EditComponent(r.PathValue("id"), r.PathValue("component_id"), c)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleSaveEdits handles POST /v1/views/{id}/save.
func (h *Handlers) HandleSaveEdits(w http.ResponseWriter, r *http.Request) {
	snap, err := h.designs.SaveEdits(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleDiscardEdits handles DELETE /v1/views/{id}/edits.
func (h *Handlers) HandleDiscardEdits(w http.ResponseWriter, r *http.Request) {
	snap, err := h.designs.DiscardEdits(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleCancel handles DELETE /v1/views/{id}/inflight.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.designs.Cancel(r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
