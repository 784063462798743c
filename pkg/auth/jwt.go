// Package auth verifies the bearer credential presented at connection handshake.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMissing means no credential was presented at all.
	ErrTokenMissing = errors.New("auth token missing")
	// ErrTokenMalformed covers bad encoding, bad signature and unusable claims.
	// Clients should stop retrying with the same token.
	ErrTokenMalformed = errors.New("auth token malformed")
	// ErrTokenExpired means the client should refresh its token and retry.
	ErrTokenExpired = errors.New("auth token expired")
)

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID string
	Expiry time.Time
}

type Verifier interface {
	Verify(token string) (Identity, error)
}

// AppClaims defines our custom JWT claims structure. The REST layer issues tokens
// with the user id either in "sub" or in "userId".
type AppClaims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*JWTVerifier)

// WithIssuer requires the "iss" claim to match.
func WithIssuer(issuer string) Option {
	return func(v *JWTVerifier) { v.issuer = issuer }
}

// WithTimeFunc overrides the clock used to check expiry.
func WithTimeFunc(now func() time.Time) Option {
	return func(v *JWTVerifier) { v.now = now }
}

func NewJWTVerifier(secret string, opts ...Option) *JWTVerifier {
	v := &JWTVerifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ Verifier = (*JWTVerifier)(nil)

func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrTokenMissing
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &AppClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, parserOpts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case !token.Valid:
		return Identity{}, ErrTokenMalformed
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrTokenMalformed)
	}
	return Identity{UserID: userID, Expiry: claims.ExpiresAt.Time}, nil
}
