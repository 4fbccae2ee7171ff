package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"github.com/ceotind/sharp-form-backend/internal/models"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue(models.Identity{UID: "u1", Email: "a@b.co", Name: "Ann"})
	require.NoError(t, err)

	id, err := issuer.VerifyCredential(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UID)
	assert.Equal(t, "a@b.co", id.Email)
	assert.Equal(t, "Ann", id.Name)
}

func TestSessionTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue(models.Identity{UID: "u1"})
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).VerifyCredential(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(models.Identity{UID: "u1"})
	require.NoError(t, err)
	_, err = issuer.VerifyCredential(context.Background(), old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLinkTokenIsNotASession(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	links := NewLinkSigner(issuer, "https://api.example.com/")

	link, err := links.SignURL("uploads/u1/x.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://api.example.com/api/files/download?token="))

	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")

	key, err := links.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uploads/u1/x.pdf", key)

	_, err = issuer.VerifyCredential(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	session, _ := issuer.Issue(models.Identity{UID: "u1"})
	_, err = links.Verify(session)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func TestGoogleVerifierMapsClaims(t *testing.T) {
	g := NewGoogleVerifier("client")
	g.validate = func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		if token != "good" || audience != "client" {
			return nil, errors.New("bad token")
		}
		return &idtoken.Payload{Subject: "g-1", Claims: map[string]any{
			"email":          "g@example.com",
			"email_verified": true,
			"name":           "Gee",
		}}, nil
	}

	id, err := g.VerifyIDToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UID: "g-1", Email: "g@example.com", Name: "Gee"}, *id)

	_, err = g.VerifyIDToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type countingVerifier struct {
	calls int
}

func (c *countingVerifier) VerifyCredential(_ context.Context, token string) (*models.Identity, error) {
	c.calls++
	if token == "ok" {
		return &models.Identity{UID: "u1"}, nil
	}
	return nil, ErrInvalidToken
}

func TestRequiredMiddleware(t *testing.T) {
	v := &countingVerifier{}
	var seen *models.Identity
	h := Required(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
	}))

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer ok", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.header)
		if tc.status == http.StatusUnauthorized {
			assert.Contains(t, rec.Body.String(), `"code":"UNAUTHENTICATED"`)
		}
	}
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UID)
	// Malformed headers never reach the verifier.
	assert.Equal(t, 2, v.calls)
}

func TestOptionalMiddleware(t *testing.T) {
	v := &countingVerifier{}
	var seen *models.Identity
	h := Optional(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer ok")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UID)
}
