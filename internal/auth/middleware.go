package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/models"
)

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	VerifyCredential(ctx context.Context, token string) (*models.Identity, error)
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity attached by Required or Optional, nil
// for anonymous requests.
func IdentityFrom(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(identityKey).(*models.Identity)
	return id
}

// bearer returns the token of an "Authorization: Bearer <token>" header.
func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  apperr.CodeUnauthenticated,
	})
}

// Required rejects requests without a valid bearer token.
func Required(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok {
				unauthorized(w, "Unauthorized: No token provided")
				return
			}
			id, err := v.VerifyCredential(r.Context(), token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("token rejected")
				unauthorized(w, "Unauthorized: Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Optional attaches an identity when a valid bearer token is present and
// otherwise lets the request through anonymously.
func Optional(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearer(r); ok {
				if id, err := v.VerifyCredential(r.Context(), token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
