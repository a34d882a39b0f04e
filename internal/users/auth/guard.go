// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// # Contracts

// AccessTokenVerifier decodes access tokens. [*sec.TokenService] satisfies it.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (*sec.TokenClaims, error)
	VerifyAccessTokenIgnoringExpiry(token string) (*sec.TokenClaims, error)
}

// credentials are the raw values a guard pulled from the request.
type credentials struct {
	accessToken  string
	refreshToken string
}

// extractor reads credentials, reporting false when they are absent or malformed.
type extractor func(request *http.Request) (credentials, bool)

// # Guard

// Guard authenticates one request from its bearer header or token cookies.
//
// It is a pure decode-and-validate step: no I/O and no writes. Each request
// moves from no credential to decoded to validated, or stops at a rejection.
type Guard struct {
	verifier       AccessTokenVerifier
	extract        extractor
	tolerateExpiry bool
}

// NewBearerGuard reads "Authorization: Bearer <token>" and enforces expiry.
func NewBearerGuard(verifier AccessTokenVerifier) *Guard {
	return &Guard{verifier: verifier, extract: bearerCredentials}
}

// NewBearerRefreshGuard reads the bearer header and accepts an expired access
// token. The refresh token travels in the request body.
func NewBearerRefreshGuard(verifier AccessTokenVerifier) *Guard {
	return &Guard{verifier: verifier, extract: bearerCredentials, tolerateExpiry: true}
}

// NewCookieGuard reads the access_token cookie and enforces expiry.
func NewCookieGuard(verifier AccessTokenVerifier) *Guard {
	return &Guard{verifier: verifier, extract: cookieCredentials(false)}
}

// NewCookieRefreshGuard requires both token cookies and accepts an expired access token.
func NewCookieRefreshGuard(verifier AccessTokenVerifier) *Guard {
	return &Guard{verifier: verifier, extract: cookieCredentials(true), tolerateExpiry: true}
}

/*
Authenticate resolves the request's principal.

Returns:
  - *sec.Principal: Claims plus the raw tokens that carried them
  - error: CredentialsMissing, InvalidToken or TokenExpired
*/
func (guard *Guard) Authenticate(request *http.Request) (*sec.Principal, error) {

	// 1. Extract
	creds, ok := guard.extract(request)
	if !ok {
		return nil, apperr.CredentialsMissing()
	}

	// 2. Decode and verify
	verify := guard.verifier.VerifyAccessToken
	if guard.tolerateExpiry {
		verify = guard.verifier.VerifyAccessTokenIgnoringExpiry
	}

	claims, err := verify(creds.accessToken)
	if err != nil {
		return nil, translateTokenError(err)
	}

	// 3. Bind
	return bindPrincipal(claims, creds)
}

// translateTokenError maps token-layer failures onto the apperr taxonomy.
func translateTokenError(err error) error {
	if errors.Is(err, sec.ErrTokenExpired) {
		return apperr.TokenExpired().WithCause(err)
	}
	return apperr.InvalidToken("Invalid access token").WithCause(err)
}

func bindPrincipal(claims *sec.TokenClaims, creds credentials) (*sec.Principal, error) {
	if claims == nil || claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, apperr.InvalidToken("Invalid access token")
	}

	return &sec.Principal{
		IssuedAt:     claims.IssuedAt.Time.UTC().Truncate(time.Second),
		ExpiresAt:    claims.ExpiresAt.Time.UTC().Truncate(time.Second),
		Subject:      claims.Subject,
		Type:         claims.Type,
		AccessToken:  creds.accessToken,
		RefreshToken: creds.refreshToken,
	}, nil
}

// # Extractors

func bearerCredentials(request *http.Request) (credentials, bool) {
	header := request.Header.Get(constants.HeaderAuthorization)

	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, constants.BearerScheme) {
		return credentials{}, false
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return credentials{}, false
	}

	return credentials{accessToken: token}, true
}

func cookieCredentials(requireRefresh bool) extractor {
	return func(request *http.Request) (credentials, bool) {
		access := cookieValue(request, constants.AccessTokenCookieName)
		if access == "" {
			return credentials{}, false
		}

		refresh := cookieValue(request, constants.RefreshTokenCookieName)
		if requireRefresh && refresh == "" {
			return credentials{}, false
		}

		return credentials{accessToken: access, refreshToken: refresh}, true
	}
}

func cookieValue(request *http.Request, name string) string {
	cookie, err := request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
