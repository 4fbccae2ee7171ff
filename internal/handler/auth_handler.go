package handler

import (
	"net/http"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully.",
		"uid":     result.UID,
		"email":   result.Email,
		"token":   result.Token,
	})
}

// Login accepts either {email, password} or {idToken}.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		IDToken  string `json:"idToken"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var (
		result *service.LoginResult
		err    error
	)
	if req.IDToken != "" {
		result, err = h.svc.LoginWithToken(r.Context(), req.IDToken)
	} else {
		result, err = h.svc.Login(r.Context(), req.Email, req.Password)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful.",
		"token":   result.Token,
		"user":    result.User,
	})
}

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.svc.GoogleSignIn(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, message := http.StatusOK, "Google Sign-In successful."
	if result.Created {
		status, message = http.StatusCreated, "User created via Google Sign-In."
	}
	writeJSON(w, status, map[string]any{
		"message": message,
		"token":   result.Token,
		"user":    result.User,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	if id == nil {
		writeError(w, r, apperr.Unauthenticated("Unauthorized: No token provided"))
		return
	}
	user, err := h.svc.Me(r.Context(), id.UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
