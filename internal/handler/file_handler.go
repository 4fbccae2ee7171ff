package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/filecheck"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/service"
)

// multipartSlack covers boundaries and part headers on top of the file size.
const multipartSlack = 64 << 10

const fileField = "file"

type FileHandler struct {
	svc *service.FileService
}

func NewFileHandler(svc *service.FileService) *FileHandler {
	return &FileHandler{svc: svc}
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	files, err := h.svc.List(r.Context(), id.UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	checker := h.svc.Checker()
	if r.ContentLength > checker.MaxBytes+multipartSlack {
		writeError(w, r, checker.TooLarge(r.ContentLength))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, checker.MaxBytes+multipartSlack)

	upload, err := readUpload(r, checker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := auth.IdentityFrom(r.Context())
	info, err := h.svc.Upload(r.Context(), id.UID, upload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "File uploaded successfully.",
		"file":    info,
	})
}

// readUpload streams the multipart body and returns its single file part.
// Non-file fields are ignored.
func readUpload(r *http.Request, checker *filecheck.Checker) (*filecheck.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, filecheck.NoFile()
	}
	var upload *filecheck.Upload
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bodyError(err, r, checker)
		}
		if part.FileName() == "" {
			_, _ = io.Copy(io.Discard, part)
			continue
		}
		if part.FormName() != fileField {
			return nil, apperr.New(apperr.KindInvalidInput, apperr.CodeInvalidField,
				fmt.Sprintf("Unexpected field %q. Files must be sent in the %q field.", part.FormName(), fileField))
		}
		if upload != nil {
			return nil, apperr.New(apperr.KindInvalidInput, apperr.CodeTooManyFiles, "Only one file may be uploaded per request.")
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, bodyError(err, r, checker)
		}
		upload = &filecheck.Upload{
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}
	}
	if upload == nil {
		return nil, filecheck.NoFile()
	}
	return upload, nil
}

func bodyError(err error, r *http.Request, checker *filecheck.Checker) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		size := r.ContentLength
		if size <= 0 {
			size = tooLarge.Limit + 1
		}
		return checker.TooLarge(size)
	}
	return apperr.InvalidInput("Malformed multipart body.")
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	if err := h.svc.Delete(r.Context(), id.UID, chi.URLParam(r, "fileName")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully."})
}

// Download serves the object granted by a signed link token.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	data, obj, err := h.svc.Download(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := obj.Metadata[models.MetaOriginalName]
	if name == "" {
		name = path.Base(obj.Key)
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}
