package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthToken is the identity payload returned by the auth service for a
// validated bearer token.
type AuthToken struct {
	Platform    string   `json:"platform"`
	Profile     string   `json:"profile"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsSuperUser bool     `json:"isSuperUser"`
}

type identityClaims struct {
	Platform    string   `json:"platform"`
	Profile     string   `json:"profile"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsSuperUser bool     `json:"isSuperUser"`
	jwt.RegisteredClaims
}

// SignIdentity encodes the validated identity as an HS256 JWT so
// backends can verify who the gateway vouched for without calling the
// auth service themselves.
func SignIdentity(token *AuthToken, appID string, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		Platform:    token.Platform,
		Profile:     token.Profile,
		Roles:       token.Roles,
		Permissions: token.Permissions,
		IsSuperUser: token.IsSuperUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gatewaysvc",
			Subject:   appID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("sign identity: %w", err)
	}
	return signed, nil
}

// ParseIdentity verifies and decodes a signed identity assertion. Used
// by tests and by anything downstream that shares the gateway secret.
func ParseIdentity(signed string, secretKey string) (*AuthToken, error) {
	var claims identityClaims
	_, err := jwt.ParseWithClaims(signed, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secretKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	return &AuthToken{
		Platform:    claims.Platform,
		Profile:     claims.Profile,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		IsSuperUser: claims.IsSuperUser,
	}, nil
}
