// Package auth issues and verifies the HMAC-signed JWTs carried in the auth
// envelope.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// DefaultIssuer is stamped into every token and required on verify.
const DefaultIssuer = "storetwin"

// minSecretLen is the shortest accepted HMAC secret.
const minSecretLen = 16

// Claims are the token claims. Role is informational (e.g. "viewer",
// "simulator").
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Credentials holds the shared secret used to sign and verify tokens.
type Credentials struct {
	Secret []byte
	Issuer string
}

// NewCredentials validates secret and returns credentials.
func NewCredentials(secret string) (*Credentials, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLen)
	}
	return &Credentials{Secret: []byte(secret), Issuer: DefaultIssuer}, nil
}

// LoadCredentials reads the secret from a file, trimming surrounding
// whitespace.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		return nil, fmt.Errorf("secret file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	return NewCredentials(strings.TrimSpace(string(data)))
}

// Issue signs a token for subject valid for ttl. ttl <= 0 means no expiry.
func (c *Credentials) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Every failure wraps ErrInvalidToken.
func (c *Credentials) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return c.Secret, nil
	}, jwt.WithIssuer(c.Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
