package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/filecheck"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/ratelimit"
	"github.com/ceotind/sharp-form-backend/internal/service"
	"github.com/ceotind/sharp-form-backend/internal/store/memory"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

type app struct {
	t      *testing.T
	srv    *httptest.Server
	tokens *auth.TokenIssuer
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type stubGoogle struct{}

func (stubGoogle) VerifyIDToken(_ context.Context, token string) (*models.Identity, error) {
	if token != "google-ok" {
		return nil, auth.ErrInvalidToken
	}
	return &models.Identity{UID: "g-1", Email: "g@example.com", Name: "Gee"}, nil
}

func newApp(t *testing.T, health error) *app {
	t.Helper()
	tokens := auth.NewTokenIssuer("router-secret", time.Hour)
	a := &app{t: t, tokens: tokens}

	// Signed links embed the server URL, so the router is built after start.
	var h http.Handler
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { h.ServeHTTP(w, r) }))
	t.Cleanup(a.srv.Close)

	links := auth.NewLinkSigner(tokens, a.srv.URL)
	forms, responses, users := memory.NewFormStore(), memory.NewResponseStore(), memory.NewUserStore()
	blobs := memory.NewBlobStore(links)

	h = New(Deps{
		Logger:       zerolog.Nop(),
		Verifier:     tokens,
		Limiter:      ratelimit.NewMemory(10, 15*time.Minute),
		UploadWindow: 15 * time.Minute,
		CORSOrigins:  []string{"*"},
		Health:       pinger{err: health},
		Auth:         service.NewAuthService(users, tokens, stubGoogle{}),
		Forms:        service.NewFormService(forms, responses, blobs),
		Responses:    service.NewResponseService(forms, responses),
		Files: service.NewFileService(blobs, filecheck.New(0), links, service.FileOptions{
			Retention: 30 * 24 * time.Hour,
			LinkTTL:   time.Hour,
		}),
	})
	return a
}

func (a *app) token(uid string) string {
	tok, err := a.tokens.Issue(models.Identity{UID: uid, Email: uid + "@example.com"})
	require.NoError(a.t, err)
	return tok
}

func (a *app) do(method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return a.send(req)
}

func (a *app) send(req *http.Request) (*http.Response, map[string]any) {
	a.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 && raw[0] == '[' {
		var list []any
		require.NoError(a.t, json.Unmarshal(raw, &list))
		out["list"] = list
	} else {
		out["raw"] = string(raw)
	}
	return resp, out
}

func (a *app) upload(token, field, name, contentType string, data []byte) (*http.Response, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, name)}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	require.NoError(a.t, err)
	_, _ = part.Write(data)
	require.NoError(a.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/files/upload", &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.send(req)
}

func (a *app) createForm(token string, published bool) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/forms", token, map[string]any{
		"name": "Survey",
		"elements": []map[string]any{
			{"id": "q1", "type": "text", "label": "Name", "required": true},
			{"id": "q2", "type": "file", "label": "CV"},
		},
		"isPublished": published,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode, body)
	return body["formId"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newApp(t, nil)
	resp, body := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["raw"], "sharpform_http_requests_total")

	down := newApp(t, errors.New("down"))
	resp, _ = down.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	a := newApp(t, nil)
	resp, body := a.do(http.MethodGet, "/api/forms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])

	resp, _ = a.do(http.MethodGet, "/api/forms", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, a.srv.URL+"/api/forms", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, _ = a.send(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterLoginMe(t *testing.T) {
	a := newApp(t, nil)
	resp, body := a.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "ann@example.com", "password": "secret1", "displayName": "Ann",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "ann@example.com", body["email"])

	resp, body = a.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "ann@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = a.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ann@example.com", "password": "bad-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = a.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	token := body["token"].(string)

	resp, body = a.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ann", body["displayName"])

	resp, body = a.do(http.MethodPost, "/api/auth/google", "", map[string]any{"idToken": "google-ok"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, body)
	resp, _ = a.do(http.MethodPost, "/api/auth/google", "", map[string]any{"idToken": "google-ok"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFormLifecycle(t *testing.T) {
	a := newApp(t, nil)
	owner, other := a.token("owner"), a.token("other")

	resp, body := a.do(http.MethodPost, "/api/forms", owner, map[string]any{
		"name": "Bad", "elements": []map[string]any{{"type": "text"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []any{float64(0)}, body["details"].(map[string]any)["invalidElements"])

	formID := a.createForm(owner, false)

	resp, _ = a.do(http.MethodGet, "/api/forms/"+formID, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = a.do(http.MethodGet, "/api/forms/missing", owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = a.do(http.MethodPut, "/api/forms/"+formID, owner, map[string]any{"isPublished": true}, "If-Match", `"1"`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, []any{"isPublished", "updatedAt"}, body["updatedFields"])
	assert.Equal(t, `"2"`, resp.Header.Get("ETag"))

	resp, body = a.do(http.MethodPut, "/api/forms/"+formID, owner, map[string]any{"name": "Stale"}, "If-Match", "1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "VERSION_MISMATCH", body["code"])

	resp, body = a.do(http.MethodPut, "/api/forms/"+formID, owner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "NOTHING_TO_UPDATE", body["code"])

	resp, _ = a.do(http.MethodPut, "/api/forms/"+formID, owner, map[string]any{"name": "x"}, "If-Match", "abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(http.MethodGet, "/api/forms/"+formID, other, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "owner", body["ownerId"])

	resp, body = a.do(http.MethodGet, "/api/forms", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["list"], 1)

	resp, _ = a.do(http.MethodDelete, "/api/forms/"+formID, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body = a.do(http.MethodDelete, "/api/forms/"+formID, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, formID, body["formId"])
	resp, _ = a.do(http.MethodGet, "/api/forms/"+formID, owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResponsesFlow(t *testing.T) {
	a := newApp(t, nil)
	owner := a.token("owner")
	formID := a.createForm(owner, true)
	draftID := a.createForm(owner, false)

	resp, body := a.do(http.MethodPost, "/api/forms/"+formID+"/responses", "", map[string]any{"answers": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_REQUIRED", body["code"])
	assert.Equal(t, []any{"q1"}, body["details"].(map[string]any)["missingQuestions"])

	resp, body = a.do(http.MethodPost, "/api/forms/"+draftID+"/responses", "", map[string]any{"answers": map[string]any{"q1": "x"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "This form is not accepting responses.", body["error"])

	// An invalid token on the optional route falls back to anonymous.
	resp, body = a.do(http.MethodPost, "/api/forms/"+formID+"/responses", "garbage", map[string]any{"answers": map[string]any{"q1": "anon"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "Response recorded successfully.", body["message"])

	resp, _ = a.do(http.MethodPost, "/api/forms/"+formID+"/responses", a.token("resp"), map[string]any{"answers": map[string]any{"q1": "known"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = a.do(http.MethodGet, "/api/forms/"+formID+"/responses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = a.do(http.MethodGet, "/api/forms/"+formID+"/responses", a.token("other"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = a.do(http.MethodGet, "/api/forms/"+formID+"/responses", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["list"].([]any)
	require.Len(t, list, 2)
	var respondents []any
	for _, item := range list {
		r := item.(map[string]any)
		_, err := time.Parse(time.RFC3339, r["timestamp"].(string))
		assert.NoError(t, err)
		respondents = append(respondents, r["respondentId"])
	}
	assert.ElementsMatch(t, []any{nil, "resp"}, respondents)

	resp, body = a.do(http.MethodGet, "/api/forms/"+formID, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["responsesCount"])
}

func TestFileUploadListDownloadDelete(t *testing.T) {
	a := newApp(t, nil)
	tok := a.token("u1")

	resp, body := a.upload(tok, "file", "logo.png", "image/png", pngHeader)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "10", resp.Header.Get("RateLimit-Limit"))
	assert.Equal(t, "9", resp.Header.Get("RateLimit-Remaining"))
	file := body["file"].(map[string]any)
	fileName := file["fileName"].(string)
	link := file["url"].(string)
	assert.True(t, strings.HasPrefix(link, a.srv.URL+"/api/files/download?token="))

	resp, body = a.do(http.MethodGet, "/api/files", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["list"], 1)

	req, _ := http.NewRequest(http.MethodGet, link, nil)
	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", dl.Header.Get("Content-Type"))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), `filename=logo.png`)

	resp, _ = a.do(http.MethodGet, "/api/files/download?token="+url.QueryEscape(tok), "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = a.do(http.MethodDelete, "/api/files/"+fileName, a.token("u2"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, body = a.do(http.MethodDelete, "/api/files/"+fileName, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "File deleted successfully.", body["message"])
}

func TestFileUploadRejections(t *testing.T) {
	a := newApp(t, nil)
	tok := a.token("u1")

	resp, _ := a.upload("", "file", "a.png", "image/png", pngHeader)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := a.upload(tok, "document", "a.png", "image/png", pngHeader)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_FIELD_NAME", body["code"])

	resp, body = a.upload(tok, "file", "a.exe", "application/x-msdownload", []byte("MZ"))
	assert.Equal(t, "INVALID_FILE_TYPE", body["code"])

	resp, body = a.upload(tok, "file", "a.png", "image/png", []byte("not a png"))
	assert.Equal(t, "INVALID_FILE_CONTENT", body["code"])

	resp, body = a.upload(tok, "file", "big.png", "image/png", append(pngHeader, make([]byte, 5<<20)...))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "FILE_TOO_LARGE", body["code"])

	resp, body = a.do(http.MethodPost, "/api/files/upload", tok, map[string]any{"x": 1})
	assert.Equal(t, "NO_FILE", body["code"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, n := range []string{"a.txt", "b.txt"} {
		p, _ := mw.CreateFormFile("file", n)
		_, _ = p.Write([]byte("hi"))
	}
	require.NoError(t, mw.Close())
	req, _ := http.NewRequest(http.MethodPost, a.srv.URL+"/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, body = a.send(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "TOO_MANY_FILES", body["code"])
}

func TestUploadSizeBoundary(t *testing.T) {
	a := newApp(t, nil)
	tok := a.token("u1")
	full := make([]byte, filecheck.DefaultMaxBytes)
	copy(full, pngHeader)

	resp, body := a.upload(tok, "file", "full.png", "image/png", full)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body["code"])
	assert.Equal(t, float64(filecheck.DefaultMaxBytes), body["file"].(map[string]any)["size"])

	resp, body = a.upload(tok, "file", "over.png", "image/png", append(full, 0))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "FILE_TOO_LARGE", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "5MB", details["receivedSize"])
}

func TestUploadRateLimit(t *testing.T) {
	a := newApp(t, nil)
	tok := a.token("busy")
	for i := 0; i < 10; i++ {
		resp, body := a.upload(tok, "file", "a.txt", "text/plain", []byte("hello"))
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	}
	resp, body := a.upload(tok, "file", "a.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = a.upload(a.token("calm"), "file", "a.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
