package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"

	"github.com/ceotind/sharp-form-backend/internal/models"
)

// FederatedVerifier checks an ID token minted by an external provider.
type FederatedVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (*models.Identity, error)
}

// GoogleVerifier validates Google ID tokens for one OAuth client id.
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (g *GoogleVerifier) VerifyIDToken(ctx context.Context, token string) (*models.Identity, error) {
	payload, err := g.validate(ctx, token, g.clientID)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	email, _ := payload.Claims["email"].(string)
	if payload.Subject == "" || email == "" {
		return nil, ErrInvalidToken
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, ErrInvalidToken
	}
	id := &models.Identity{UID: payload.Subject, Email: email}
	id.Name, _ = payload.Claims["name"].(string)
	id.Picture, _ = payload.Claims["picture"].(string)
	return id, nil
}
