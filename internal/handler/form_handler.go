package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/service"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

type FormHandler struct {
	svc *service.FormService
}

func NewFormHandler(svc *service.FormService) *FormHandler {
	return &FormHandler{svc: svc}
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	forms, err := h.svc.List(r.Context(), id.UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.FormInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := auth.IdentityFrom(r.Context())
	form, err := h.svc.Create(r.Context(), id.UID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Form created successfully.",
		"formId":  form.ID,
		"data":    form,
	})
}

func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	form, err := h.svc.Get(r.Context(), id.UID, chi.URLParam(r, "formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// Update honours an optional If-Match header carrying the expected version.
func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	expected, err := ifMatchVersion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch models.FormPatch
	if err := readJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	id := auth.IdentityFrom(r.Context())
	res, err := h.svc.Update(r.Context(), id.UID, chi.URLParam(r, "formId"), patch, expected)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(res.Version, 10)))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Form updated successfully.",
		"formId":        res.FormID,
		"updatedFields": res.UpdatedFields,
		"version":       res.Version,
	})
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	res, err := h.svc.Delete(r.Context(), id.UID, chi.URLParam(r, "formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Form deleted successfully.",
		"formId":           res.FormID,
		"responsesDeleted": res.ResponsesDeleted,
		"filesDeleted":     res.FilesDeleted,
	})
}

// ifMatchVersion parses If-Match as a positive version, quoted or bare.
// An absent header yields store.AnyVersion.
func ifMatchVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return store.AnyVersion, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	v, err := strconv.ParseInt(strings.Trim(raw, `"`), 10, 64)
	if err != nil || v < 1 {
		return 0, apperr.InvalidInput("If-Match must carry a form version.")
	}
	return v, nil
}
