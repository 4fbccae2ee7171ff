package auth

import (
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const linkAudience = "file-link"

// LinkSigner issues download links for blob backends that cannot presign.
// The link carries a JWT whose subject is the object key.
type LinkSigner struct {
	tokens  *TokenIssuer
	baseURL string
}

// NewLinkSigner shares the secret of tokens; the distinct audience keeps a
// link from being accepted as a session and vice versa.
func NewLinkSigner(tokens *TokenIssuer, publicBaseURL string) *LinkSigner {
	return &LinkSigner{tokens: tokens, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (l *LinkSigner) Sign(key string, ttl time.Duration) (string, error) {
	now := l.tokens.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   key,
		Audience:  jwt.ClaimStrings{linkAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.tokens.secret)
}

// SignURL returns {base}/api/files/download?token=...
func (l *LinkSigner) SignURL(key string, ttl time.Duration) (string, error) {
	token, err := l.Sign(key, ttl)
	if err != nil {
		return "", err
	}
	return l.baseURL + "/api/files/download?token=" + url.QueryEscape(token), nil
}

// Verify returns the object key a link token grants access to.
func (l *LinkSigner) Verify(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if err := l.tokens.parse(tokenStr, linkAudience, claims); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
