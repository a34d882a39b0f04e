// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, field encryption,
// blind indexing, JWT signing) from the domain logic. Every primitive is an
// explicitly constructed value built once at startup from [config.Config]
// and injected into the services that need it.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Token Types

const (
	TokenTypeAccess  = "access_token"
	TokenTypeRefresh = "refresh_token"
)

// Refresh token strategies.
const (
	RefreshStrategyOpaque = "opaque"
	RefreshStrategyJWT    = "jwt"
)

// OpaqueRefreshTokenBytes is the entropy of an opaque refresh token (256 bits).
const OpaqueRefreshTokenBytes = 32

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and wrong claim shapes.
	ErrTokenInvalid = errors.New("sec: token invalid")

	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("sec: token expired")
)

// TokenClaims is the exact payload of access and refresh JWTs.
//
// Only sub, iat and exp are set on the embedded registered claims, all of
// which are omitempty, so the wire form is {iat, exp, sub, type}.
type TokenClaims struct {
	jwt.RegisteredClaims

	Type string `json:"type"`
}

// TokenPair is the result of a single issuance. Both tokens share IssuedAt.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessExpiresIn is the access token lifetime in whole seconds.
func (pair TokenPair) AccessExpiresIn() int64 {
	return int64(pair.AccessExpiresAt.Sub(pair.IssuedAt) / time.Second)
}

// RefreshExpiresIn is the refresh token lifetime in whole seconds.
func (pair TokenPair) RefreshExpiresIn() int64 {
	return int64(pair.RefreshExpiresAt.Sub(pair.IssuedAt) / time.Second)
}

// Principal is the validated identity extracted from a request's tokens.
type Principal struct {
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Subject      string
	Type         string
	AccessToken  string
	RefreshToken string
}

// TokenConfig holds the immutable parameters of a [TokenService].
type TokenConfig struct {
	AccessSecret    string
	RefreshSecret   string
	Algorithm       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RefreshStrategy string
}

// TokenService issues and verifies HMAC-signed JWTs.
//
// Issuance is pure: it performs no I/O and callers own persistence.
type TokenService struct {
	method        *jwt.SigningMethodHMAC
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	strategy      string
	now           func() time.Time
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("sec: unsupported jwt algorithm %q", cfg.Algorithm)
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("sec: jwt secrets must not be empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("sec: token ttl must be positive")
	}

	strategy := cfg.RefreshStrategy
	if strategy == "" {
		strategy = RefreshStrategyOpaque
	}
	if strategy != RefreshStrategyOpaque && strategy != RefreshStrategyJWT {
		return nil, fmt.Errorf("sec: unknown refresh token strategy %q", strategy)
	}

	return &TokenService{
		method:        method,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		strategy:      strategy,
		now:           time.Now,
	}, nil
}

// WithClock returns a copy of the service that reads time from now.
func (service *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *service
	clone.now = now
	return &clone
}

// AccessTTL returns the configured access token lifetime.
func (service *TokenService) AccessTTL() time.Duration { return service.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (service *TokenService) RefreshTTL() time.Duration { return service.refreshTTL }

// # Issuance

// IssuePair creates an access token and a refresh token for subject.
//
// iat is computed once, truncated to whole seconds, and shared by both
// tokens so exp-iat equals the configured TTL exactly.
func (service *TokenService) IssuePair(subject string) (TokenPair, error) {
	if subject == "" {
		return TokenPair{}, errors.New("sec: token subject must not be empty")
	}

	issuedAt := service.now().UTC().Truncate(time.Second)
	pair := TokenPair{
		IssuedAt:         issuedAt,
		AccessExpiresAt:  issuedAt.Add(service.accessTTL),
		RefreshExpiresAt: issuedAt.Add(service.refreshTTL),
	}

	accessToken, err := service.sign(subject, TokenTypeAccess, issuedAt, pair.AccessExpiresAt, service.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}
	pair.AccessToken = accessToken

	switch service.strategy {
	case RefreshStrategyJWT:
		pair.RefreshToken, err = service.sign(subject, TokenTypeRefresh, issuedAt, pair.RefreshExpiresAt, service.refreshSecret)
	default:
		pair.RefreshToken, err = GenerateSecureToken(OpaqueRefreshTokenBytes)
	}
	if err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

func (service *TokenService) sign(subject, tokenType string, issuedAt, expiresAt time.Time, secret []byte) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: tokenType,
	}

	signed, err := jwt.NewWithClaims(service.method, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign %s: %w", tokenType, err)
	}
	return signed, nil
}

// # Verification

// VerifyAccessToken checks signature, shape and expiry of an access token.
//
// Expired tokens yield [ErrTokenExpired], everything else [ErrTokenInvalid].
func (service *TokenService) VerifyAccessToken(tokenString string) (*TokenClaims, error) {
	return service.verify(tokenString, TokenTypeAccess, service.accessSecret, true)
}

// VerifyAccessTokenIgnoringExpiry checks signature and shape but tolerates a
// past exp. It serves the refresh flow, whose whole purpose is to replace an
// access token that may have already expired.
func (service *TokenService) VerifyAccessTokenIgnoringExpiry(tokenString string) (*TokenClaims, error) {
	return service.verify(tokenString, TokenTypeAccess, service.accessSecret, false)
}

// VerifyRefreshToken validates a presented refresh token for the active strategy.
// Opaque tokens only need to be non-empty; their authority comes from the store.
func (service *TokenService) VerifyRefreshToken(tokenString string) error {
	if tokenString == "" {
		return ErrTokenInvalid
	}
	if service.strategy != RefreshStrategyJWT {
		return nil
	}
	_, err := service.verify(tokenString, TokenTypeRefresh, service.refreshSecret, true)
	return err
}

func (service *TokenService) verify(tokenString, tokenType string, secret []byte, enforceExpiry bool) (*TokenClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{service.method.Alg()})}
	if enforceExpiry {
		options = append(options, jwt.WithExpirationRequired(), jwt.WithTimeFunc(service.now))
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, options...)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil || claims.Type != tokenType {
		return nil, fmt.Errorf("%w: unexpected claims shape", ErrTokenInvalid)
	}
	return claims, nil
}
