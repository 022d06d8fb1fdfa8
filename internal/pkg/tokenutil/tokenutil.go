// Package tokenutil issues and verifies the signed, time-limited tokens
// embedded in confirmation links (email verification, password reset, account
// changes). Tokens are stateless: validity is proven by signature and expiry
// alone, so consumers must re-check current state before acting on one.
package tokenutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for every verification failure. Callers must
// not learn whether the signature, shape or expiry was at fault.
var ErrTokenInvalid = errors.New("token is invalid or has expired")

type Claims struct {
	Email       string `json:"email,omitempty"`
	UserID      uint   `json:"user_id,omitempty"`
	NewEmail    string `json:"new_email,omitempty"`
	NewUsername string `json:"new_username,omitempty"`
	jwt.RegisteredClaims
}

func Issue(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	claims.IssuedAt = jwt.NewNumericDate(time.Now())

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

func Verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
