// Package router assembles the HTTP surface.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/handler"
	"github.com/ceotind/sharp-form-backend/internal/metrics"
	mw "github.com/ceotind/sharp-form-backend/internal/middleware"
	"github.com/ceotind/sharp-form-backend/internal/ratelimit"
	"github.com/ceotind/sharp-form-backend/internal/service"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

type Deps struct {
	Logger   zerolog.Logger
	Verifier auth.Verifier
	Limiter  ratelimit.Limiter
	// UploadWindow labels rate-limit rejections.
	UploadWindow time.Duration
	CORSOrigins  []string
	// Health is pinged by /healthz; nil reports healthy.
	Health store.Pinger

	Auth      *service.AuthService
	Forms     *service.FormService
	Responses *service.ResponseService
	Files     *service.FileService
}

func New(d Deps) *chi.Mux {
	authH := handler.NewAuthHandler(d.Auth)
	formH := handler.NewFormHandler(d.Forms)
	respH := handler.NewResponseHandler(d.Responses)
	fileH := handler.NewFileHandler(d.Files)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(d.Logger))
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(mw.CORS(d.CORSOrigins))

	r.Get("/healthz", healthz(d.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.Register)
			r.Post("/login", authH.Login)
			if d.Auth.GoogleEnabled() {
				r.Post("/google", authH.Google)
			}
			r.With(auth.Required(d.Verifier)).Get("/me", authH.Me)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/download", fileH.Download)
			r.Group(func(r chi.Router) {
				r.Use(auth.Required(d.Verifier))
				r.Get("/", fileH.List)
				r.With(ratelimit.Middleware(d.Limiter, "upload", d.UploadWindow)).Post("/upload", fileH.Upload)
				r.Delete("/{fileName}", fileH.Delete)
			})
		})

		r.Route("/forms", func(r chi.Router) {
			r.With(auth.Optional(d.Verifier)).Post("/{formId}/responses", respH.Submit)
			r.Group(func(r chi.Router) {
				r.Use(auth.Required(d.Verifier))
				r.Get("/", formH.List)
				r.Post("/", formH.Create)
				r.Get("/{formId}", formH.Get)
				r.Put("/{formId}", formH.Update)
				r.Delete("/{formId}", formH.Delete)
				r.Get("/{formId}/responses", respH.List)
			})
		})
	})

	return r
}

func healthz(p store.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
