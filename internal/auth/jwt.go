// Package auth issues and verifies the credentials of the two principal
// kinds: JWTs for humans, bearer tokens for agents. Agent token handling
// lives in internal/crypto; this package covers the JWT side and the
// request principal.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/models"
)

// Issuer is the iss claim on every token this service mints.
const Issuer = "oneshield"

// Claims is the JWT payload: subject is the user id, plus the org and role
// the middleware needs on every request.
type Claims struct {
	OrgID string `json:"org"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWT mints and verifies HS256 user tokens.
type JWT struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewJWT(secret string, lifetime time.Duration) *JWT {
	return &JWT{secret: []byte(secret), lifetime: lifetime, now: time.Now}
}

// Mint signs a token for a user.
func (j *JWT) Mint(user *models.User) (string, error) {
	now := j.now().UTC()
	claims := &Claims{
		OrgID: user.OrgID,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify parses and validates a token string. Expiry maps to its own error
// kind so clients can distinguish "log in again" from "bad token"; every
// other failure collapses into one opaque kind.
func (j *JWT) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return j.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.TokenExpired()
		}
		return nil, apperror.TokenInvalid()
	}
	return claims, nil
}
