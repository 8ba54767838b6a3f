// Package auth issues and checks the credentials behind a session.
//
// A session is an HS256 JWT carried in the HttpOnly "token" cookie or an
// Authorization: Bearer header:
//
//	HEADER.PAYLOAD.SIGNATURE
//	payload → {"sub":"<user id>","email":"...","jti":"<xid>","iss":"opsdash","exp":...}
//
// The signature is checked without a database lookup. The jti lets the
// session provider revoke a single token on sign-out.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/opsdash/internal/apperror"
)

const issuer = "opsdash"

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// TokenService signs and verifies session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService needs a secret of at least 16 characters.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Claims is the token payload. Subject is the user ID and ID (jti) is a
// per-token xid.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// Issue signs a token for the user with the service's TTL.
func (s *TokenService) Issue(userID, email string) (string, *Claims, error) {
	return s.IssueWithDuration(userID, email, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Negative
// durations are allowed so tests can build expired tokens.
func (s *TokenService) IssueWithDuration(userID, email string, d time.Duration) (string, *Claims, error) {
	now := time.Now()
	c := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, c, nil
}

// Validate checks signature, algorithm, issuer and expiry. Every failure
// is an apperror.ErrUnauthorized.
//
// jwt.WithValidMethods rejects "alg":"none" and RS/HS confusion.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Unauthorized("token expired")
		}
		return nil, apperror.Unauthorized("invalid token")
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperror.Unauthorized("invalid token claims")
	}
	if c.Subject == "" {
		return nil, apperror.Unauthorized("token has no subject")
	}
	return c, nil
}
