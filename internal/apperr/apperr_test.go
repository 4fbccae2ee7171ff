package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:    http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindRateLimited:     http.StatusTooManyRequests,
		KindUpstream:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestFromUnwrapsWrappedErrors(t *testing.T) {
	base := NotFound("form not found")
	wrapped := fmt.Errorf("get form: %w", base)

	assert.Same(t, base, From(wrapped))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestFromPlainErrorIsUpstream(t *testing.T) {
	cause := errors.New("connection reset")
	e := From(cause)

	assert.Equal(t, KindUpstream, e.Kind)
	assert.Equal(t, CodeUpstream, e.Code)
	assert.ErrorIs(t, e, cause)
}

func TestWithDetails(t *testing.T) {
	e := InvalidInput("bad").WithDetails(Details{"field": "name"})
	assert.Equal(t, "name", e.Details["field"])
	assert.Equal(t, "bad", e.Error())
}
