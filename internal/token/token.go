package token

import (
	"context"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/golang-jwt/jwt/v5"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	// RememberMeAccessTTL replaces AccessTTL on the access token only.
	RememberMeAccessTTL time.Duration
	RefreshTTL          time.Duration
	Issuer              string
}

func DefaultConfig() Config {
	return Config{
		AccessTTL:           time.Hour,
		RememberMeAccessTTL: 14 * 24 * time.Hour,
		RefreshTTL:          7 * 24 * time.Hour,
		Issuer:              "tenant-auth",
	}
}

// Claims carries the minimum a token must say: who, until when, and which kind.
type Claims struct {
	TokenType Type `json:"token_type"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the lifetime of AccessToken in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Blacklist stores revoked token ids until the token would have expired anyway.
type Blacklist interface {
	// Add reports true only for the call that inserted jti.
	Add(ctx context.Context, jti string, userID int64, tokenType Type, expiresAt time.Time) (bool, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

var (
	ErrInvalidToken = internal.ErrInvalidToken
	ErrTokenExpired = internal.ErrTokenExpired
)
