// Package devtoken mints id tokens for exercising the development proxy without a
// real SSO login. The proxy never verifies their signature.
package devtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is used when Params.TTL is zero.
const DefaultTTL = 12 * time.Hour

type Params struct {
	Username string
	Email    string
	Name     string
	Locale   string
	TTL      time.Duration
}

// Claims mirrors the subset of SSO id token claims the proxy reads.
type Claims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	Locale            string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// Mint signs a token for p with HMAC using signingKey.
func Mint(signingKey []byte, p Params) (string, error) {
	if p.Username == "" {
		return "", fmt.Errorf("username is required")
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		PreferredUsername: p.Username,
		Email:             p.Email,
		Name:              p.Name,
		Locale:            p.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// Parse validates a token minted with signingKey and returns its claims.
func Parse(tokenString string, signingKey []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
