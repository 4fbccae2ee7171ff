package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/service"
)

type ResponseHandler struct {
	svc *service.ResponseService
}

func NewResponseHandler(svc *service.ResponseService) *ResponseHandler {
	return &ResponseHandler{svc: svc}
}

// Submit accepts anonymous and authenticated respondents alike.
func (h *ResponseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers map[string]any `json:"answers"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.svc.Submit(r.Context(), chi.URLParam(r, "formId"), req.Answers, auth.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Response recorded successfully.",
		"responseId": id,
	})
}

func (h *ResponseHandler) List(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	views, err := h.svc.List(r.Context(), id.UID, chi.URLParam(r, "formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
