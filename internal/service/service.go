// Package service holds the business rules: ownership and publication
// checks, validation and the ordering of store writes. Services speak
// apperr; handlers only render.
package service

import (
	"errors"
	"regexp"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validEmail(v string) bool {
	return v != "" && len(v) <= 320 && emailRx.MatchString(v)
}

// storeErr maps a store failure onto the taxonomy. notFound is the message
// used for store.ErrNotFound.
func storeErr(err error, notFound, upstream string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, store.ErrConflict):
		return apperr.New(apperr.KindConflict, apperr.CodeVersionMismatch, "The form was modified by another request.")
	default:
		return apperr.Upstream(upstream, err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
