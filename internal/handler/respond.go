// Package handler adapts HTTP requests onto the services and renders their
// results as JSON.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
)

const maxJSONBody = 1 << 20

var errBadBody = apperr.InvalidInput("Invalid request body.")

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.InvalidInput("Request body too large.")
		}
		return errBadBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Details   apperr.Details `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// writeError renders err with the status of its kind. Upstream causes are
// logged and replaced by the request id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	body := errorBody{Error: e.Message, Code: e.Code, Details: e.Details}
	if e.Kind == apperr.KindUpstream {
		body.RequestID = chimw.GetReqID(r.Context())
		zerolog.Ctx(r.Context()).Error().Err(err).Str("requestId", body.RequestID).Msg(e.Message)
	}
	writeJSON(w, e.Kind.HTTPStatus(), body)
}
