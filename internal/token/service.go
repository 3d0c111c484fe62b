package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Issuer struct {
	cfg       Config
	blacklist Blacklist
	now       func() time.Time
	logger    *slog.Logger
}

func NewIssuer(cfg Config, blacklist Blacklist, logger *slog.Logger) *Issuer {
	def := DefaultConfig()
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RememberMeAccessTTL <= 0 {
		cfg.RememberMeAccessTTL = def.RememberMeAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	return &Issuer{
		cfg:       cfg,
		blacklist: blacklist,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source used for signing and validation. Tests only.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue mints an access and refresh pair. rememberMe stretches the access token
// only; the refresh lifetime never changes.
func (i *Issuer) Issue(ctx context.Context, userID int64, rememberMe bool) (*Pair, error) {
	accessTTL := i.cfg.AccessTTL
	if rememberMe {
		accessTTL = i.cfg.RememberMeAccessTTL
	}

	access, err := i.sign(userID, TypeAccess, accessTTL)
	if err != nil {
		return nil, i.systemError(err, "failed to sign access token", userID)
	}
	refresh, err := i.sign(userID, TypeRefresh, i.cfg.RefreshTTL)
	if err != nil {
		return nil, i.systemError(err, "failed to sign refresh token", userID)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL / time.Second),
	}, nil
}

// Refresh rotates a refresh token. The presented token is blacklisted first, so a
// replay, concurrent or later, fails.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*Pair, int64, error) {
	claims, err := i.parse(refreshToken, TypeRefresh)
	if err != nil {
		return nil, 0, err
	}
	userID, err := SubjectID(claims)
	if err != nil {
		return nil, 0, ErrInvalidToken
	}

	inserted, err := i.blacklist.Add(ctx, claims.ID, userID, TypeRefresh, claims.ExpiresAt.Time)
	if err != nil {
		return nil, 0, i.systemError(err, "failed to rotate refresh token", userID)
	}
	if !inserted {
		i.logger.WarnContext(ctx, "refresh token replay rejected", "user_id", userID, "jti", claims.ID)
		return nil, 0, ErrInvalidToken
	}

	pair, err := i.Issue(ctx, userID, false)
	if err != nil {
		return nil, 0, err
	}
	return pair, userID, nil
}

// Revoke blacklists a refresh token. It reports whether this call revoked it;
// revoking twice is not an error.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	claims, err := i.parse(refreshToken, TypeRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return false, nil
		}
		return false, err
	}
	userID, err := SubjectID(claims)
	if err != nil {
		return false, ErrInvalidToken
	}

	inserted, err := i.blacklist.Add(ctx, claims.ID, userID, TypeRefresh, claims.ExpiresAt.Time)
	if err != nil {
		return false, i.systemError(err, "failed to revoke refresh token", userID)
	}
	return inserted, nil
}

// ParseAccess validates an access token for the HTTP auth middleware.
func (i *Issuer) ParseAccess(ctx context.Context, accessToken string) (*Claims, error) {
	return i.parse(accessToken, TypeAccess)
}

func SubjectID(claims *Claims) (int64, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return id, nil
}

func (i *Issuer) sign(userID int64, tokenType Type, ttl time.Duration) (string, error) {
	now := i.now()
	claims := &Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.cfg.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secretFor(tokenType))
}

func (i *Issuer) secretFor(tokenType Type) []byte {
	if tokenType == TypeRefresh {
		return i.cfg.RefreshSecret
	}
	return i.cfg.AccessSecret
}

func (i *Issuer) parse(tokenString string, want Type) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secretFor(want), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != want || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) systemError(err error, msg string, userID int64) error {
	i.logger.Error(msg, "user_id", userID, "error", err)
	return internal.NewInternalError(msg, err)
}
