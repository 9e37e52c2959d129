package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
)

// Claims carried by a Wayfarer session token.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"` // "user" or "guest"
	jwt.RegisteredClaims
}

// Authenticator signs and validates session tokens. The secret is injected
// rather than read from an ambient package variable so tests can construct
// their own.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator with the given signing secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// GenerateUserToken issues a token for an identity asserted by the upstream
// identity provider.
func (a *Authenticator) GenerateUserToken(userID, displayName string) (string, error) {
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// GenerateGuestToken issues a short-lived token for an unauthenticated
// visitor. Guest sessions are local-only and never persisted.
func (a *Authenticator) GenerateGuestToken(guestID string) (string, error) {
	claims := &Claims{
		UserID:      guestID,
		DisplayName: "Guest",
		Role:        "guest",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates a token and returns its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// Identity maps validated claims onto a chat identity. Guest tokens get an
// anonymous identity so their transcripts stay ephemeral.
func (c *Claims) Identity() entities.Identity {
	if c.Role == "guest" || c.UserID == "" {
		return entities.Anonymous()
	}
	return entities.Identity{ID: c.UserID, DisplayName: c.DisplayName}
}
