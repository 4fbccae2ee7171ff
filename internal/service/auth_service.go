package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

const minPasswordLen = 6

type AuthService struct {
	users  store.UserStore
	tokens *auth.TokenIssuer
	google auth.FederatedVerifier
	now    func() time.Time
}

// NewAuthService wires local identities. google may be nil when federated
// sign-in is not configured.
func NewAuthService(users store.UserStore, tokens *auth.TokenIssuer, google auth.FederatedVerifier) *AuthService {
	return &AuthService{users: users, tokens: tokens, google: google, now: time.Now}
}

// GoogleEnabled reports whether federated sign-in is configured.
func (s *AuthService) GoogleEnabled() bool {
	return s.google != nil
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type RegisterResult struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type LoginResult struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

type SignInResult struct {
	Created bool
	Token   string
	User    models.UserResponse
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.InvalidInput("Email and password are required.")
	}
	if !validEmail(email) {
		return nil, apperr.InvalidInput("The email address is improperly formatted.")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.InvalidInput("Password must be at least 6 characters long.")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Upstream("Failed to register user.", err)
	}
	now := s.now().UTC()
	user := &models.User{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		Provider:     models.ProviderPassword,
		CreatedAt:    now,
		LastLoginAt:  now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("The email address is already in use by another account.")
		}
		return nil, apperr.Upstream("Failed to register user.", err)
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, apperr.Upstream("Failed to register user.", err)
	}
	zerolog.Ctx(ctx).Info().Str("uid", user.UID).Msg("user registered")
	return &RegisterResult{UID: user.UID, Email: user.Email, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, apperr.InvalidInput("Email and password are required.")
	}
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Upstream("Login failed.", err)
	}
	if user == nil || user.PasswordHash == "" || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, apperr.Unauthenticated("Login failed. Invalid email or password.")
	}
	return s.startSession(ctx, user)
}

// LoginWithToken exchanges an ID token for a session. Google tokens are
// accepted when configured; an unexpired session token is also accepted
// and refreshed.
func (s *AuthService) LoginWithToken(ctx context.Context, idToken string) (*LoginResult, error) {
	if idToken == "" {
		return nil, apperr.InvalidInput("ID token is required for login.")
	}
	if id, err := s.tokens.VerifyCredential(ctx, idToken); err == nil {
		user, err := s.users.FindByUID(ctx, id.UID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.Unauthenticated("Login failed. Invalid or expired token.")
			}
			return nil, apperr.Upstream("Login failed.", err)
		}
		return s.startSession(ctx, user)
	}
	if s.google == nil {
		return nil, apperr.Unauthenticated("Login failed. Invalid or expired token.")
	}
	res, err := s.GoogleSignIn(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: res.Token, User: models.Identity{
		UID: res.User.UID, Email: res.User.Email, Name: res.User.DisplayName, Picture: res.User.PhotoURL,
	}}, nil
}

// GoogleSignIn verifies a Google ID token and creates the profile on first
// sight.
func (s *AuthService) GoogleSignIn(ctx context.Context, idToken string) (*SignInResult, error) {
	if idToken == "" {
		return nil, apperr.InvalidInput("ID token from Google Sign-In is required.")
	}
	if s.google == nil {
		return nil, apperr.NotFound("Google Sign-In is not enabled.")
	}
	id, err := s.google.VerifyIDToken(ctx, idToken)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("google id token rejected")
		return nil, apperr.Unauthenticated("Google Sign-In failed. Invalid or expired token.")
	}

	now := s.now().UTC()
	user, err := s.users.FindByUID(ctx, id.UID)
	created := false
	switch {
	case errors.Is(err, store.ErrNotFound):
		user = &models.User{
			UID:         id.UID,
			Email:       id.Email,
			DisplayName: id.Name,
			PhotoURL:    id.Picture,
			Provider:    models.ProviderGoogle,
			CreatedAt:   now,
			LastLoginAt: now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, apperr.Conflict("The email address is already in use by another account.")
			}
			return nil, apperr.Upstream("Google Sign-In failed.", err)
		}
		created = true
	case err != nil:
		return nil, apperr.Upstream("Google Sign-In failed.", err)
	default:
		if err := s.users.RecordLogin(ctx, user.UID, id.Name, id.Picture, now); err != nil {
			return nil, apperr.Upstream("Google Sign-In failed.", err)
		}
		if id.Name != "" {
			user.DisplayName = id.Name
		}
		if id.Picture != "" {
			user.PhotoURL = id.Picture
		}
		user.LastLoginAt = now
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, apperr.Upstream("Google Sign-In failed.", err)
	}
	return &SignInResult{Created: created, Token: token, User: user.ToResponse()}, nil
}

func (s *AuthService) Me(ctx context.Context, uid string) (*models.UserResponse, error) {
	user, err := s.users.FindByUID(ctx, uid)
	if err != nil {
		return nil, storeErr(err, "User not found.", "Failed to load profile.")
	}
	resp := user.ToResponse()
	return &resp, nil
}

func (s *AuthService) startSession(ctx context.Context, user *models.User) (*LoginResult, error) {
	if err := s.users.RecordLogin(ctx, user.UID, "", "", s.now().UTC()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uid", user.UID).Msg("record login failed")
	}
	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, apperr.Upstream("Login failed.", err)
	}
	return &LoginResult{Token: token, User: user.Identity()}, nil
}
