package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL applies when NewTokenCodec is given a non-positive ttl.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidFormat    = errors.New("token format is invalid")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token has expired")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified caller carried on the request context.
type Principal struct {
	Username  string
	Role      string
	ExpiresAt time.Time
}

// IsAdmin reports the role claimed by the token, not the stored role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// TokenCodec signs and verifies HS256 session tokens carrying {sub, role, iat, exp}.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type CodecOption func(*TokenCodec)

func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewTokenCodec(secret string, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	codec := &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject that expires after the codec TTL.
func (c *TokenCodec) Issue(subject, role string) (string, error) {
	return c.IssueWithTTL(subject, role, c.ttl)
}

func (c *TokenCodec) IssueWithTTL(subject, role string, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the segment count, signature and expiry, in that order, and
// returns ErrInvalidFormat, ErrInvalidSignature or ErrExpired accordingly.
func (c *TokenCodec) Verify(tokenString string) (Principal, error) {
	if strings.Count(tokenString, ".") != 2 {
		return Principal{}, ErrInvalidFormat
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Principal{}, classifyParseError(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidFormat
	}
	expiresAt := claims.ExpiresAt.Time
	if !c.now().Before(expiresAt) {
		return Principal{}, ErrExpired
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidFormat
	}
	return Principal{Username: claims.Subject, Role: claims.Role, ExpiresAt: expiresAt}, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
}
