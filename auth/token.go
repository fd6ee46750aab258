package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinchain/backend/repository/models"
)

// ErrInvalidToken reports a token that failed verification for any reason:
// bad signature, wrong algorithm, expired, or malformed.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload: the account's role plus the registered claims,
// with Subject holding the username.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenProvider issues and verifies HS256 bearer tokens.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token for the account, valid for the provider's TTL.
func (p *TokenProvider) Issue(username string, role models.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Verify parses and validates a token, rejecting any signing method other
// than HMAC, and returns its claims.
func (p *TokenProvider) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
