// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// The HTTP delivery layer mediates between the web and [Service].
//
// API variants carry both tokens in JSON bodies and authenticate with the
// bearer header. Web variants return the access token in the body, keep both
// tokens in httpOnly cookies, and authenticate from those cookies.

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-auth/internal/platform/request"
	"github.com/taibuivan/yomira-auth/internal/platform/respond"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/internal/platform/validate"
)

// # Definitions & Constructors

// CookieConfig shapes the token cookies of the web variants.
type CookieConfig struct {
	SameSite http.SameSite
	Domain   string
}

// ParseSameSite maps a configured value (lax, strict, none) onto [http.SameSite].
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Handler implements authentication-related HTTP endpoints.
type Handler struct {
	authService   *Service
	bearer        middleware.Authenticator
	bearerRefresh middleware.Authenticator
	cookie        middleware.Authenticator
	cookieRefresh middleware.Authenticator
	cookies       CookieConfig
}

// NewHandler constructs a new [Handler] with one guard of each variant built on verifier.
func NewHandler(service *Service, verifier AccessTokenVerifier, cookies CookieConfig) *Handler {
	return &Handler{
		authService:   service,
		bearer:        NewBearerGuard(verifier),
		bearerRefresh: NewBearerRefreshGuard(verifier),
		cookie:        NewCookieGuard(verifier),
		cookieRefresh: NewCookieRefreshGuard(verifier),
		cookies:       cookies,
	}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register           : Creates a new local account.
//   - POST /api/login          : Tokens in the JSON body.
//   - POST /web/login          : Access token in the body, both tokens in cookies.
//   - POST /api/logout         : Bearer-authenticated logout.
//   - POST /web/logout         : Cookie-authenticated logout, clears cookies.
//   - POST /api/token/refresh  : Expired bearer plus refresh token in the body.
//   - POST /web/token/refresh  : Expired access cookie plus refresh cookie.
//   - GET  /me                 : Caller's profile.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/api/login", handler.apiLogin)
	router.Post("/web/login", handler.webLogin)

	// Standard guards
	router.With(middleware.Authenticate(handler.bearer)).Post("/api/logout", handler.apiLogout)
	router.With(middleware.Authenticate(handler.cookie)).Post("/web/logout", handler.webLogout)
	router.With(middleware.Authenticate(handler.bearer)).Get("/me", handler.me)

	// Refresh guards tolerate an expired access token
	router.With(middleware.Authenticate(handler.bearerRefresh)).Post("/api/token/refresh", handler.apiRefresh)
	router.With(middleware.Authenticate(handler.cookieRefresh)).Post("/web/token/refresh", handler.webRefresh)

	return router
}

// # Request Payloads

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// # Response Payloads

type registerResponse struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token,omitempty"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

func newTokenResponse(pair sec.TokenPair, includeRefresh bool) tokenResponse {
	response := tokenResponse{
		AccessToken:           pair.AccessToken,
		TokenType:             constants.TokenTypeBearer,
		ExpiresIn:             pair.AccessExpiresIn(),
		RefreshTokenExpiresIn: pair.RefreshExpiresIn(),
	}
	if includeRefresh {
		response.RefreshToken = pair.RefreshToken
	}
	return response
}

/*
Register handles the creation of a new local account.

POST /api/v1/auth/register

Request:
  - Body: registerRequest (Name, Email, Mobile, Password1, Password2)

Response:
  - 201: registerResponse: The new user ID
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email or mobile already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Email = NormalizeEmail(input.Email)
	input.Mobile = strings.TrimSpace(input.Mobile)

	validator := &validate.Validator{}
	validator.Required(FieldName, input.Name).
		PersonName(FieldName, input.Name).
		Required(FieldEmail, input.Email).
		MaxLen(FieldEmail, input.Email, EmailMaxLength).
		Email(FieldEmail, input.Email).
		Required(FieldPassword1, input.Password1).
		MaxLen(FieldPassword1, input.Password1, PasswordMaxLength).
		Password(FieldPassword1, input.Password1).
		Required(FieldPassword2, input.Password2).
		Match(FieldPassword2, input.Password2, input.Password1)

	if input.Mobile != "" {
		validator.Mobile(FieldMobile, input.Mobile)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Mobile:   input.Mobile,
		Password: input.Password1,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, registerResponse{UserID: user.ID})
}

// decodeLogin reads and validates a login body, answering the request on failure.
func (handler *Handler) decodeLogin(writer http.ResponseWriter, request *http.Request) (LoginInput, bool) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return LoginInput{}, false
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, NormalizeEmail(input.Email)).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return LoginInput{}, false
	}

	return LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		IPAddress: middleware.RealIP(request),
	}, true
}

/*
APILogin authenticates and returns both tokens in the body.

POST /api/v1/auth/api/login

Response:
  - 200: tokenResponse: access_token, refresh_token, expires_in, refresh_token_expires_in
  - 401: ErrUnauthorized: Invalid credentials
  - 429: ErrRateLimited: Too many failed attempts for this email
*/
func (handler *Handler) apiLogin(writer http.ResponseWriter, request *http.Request) {
	input, ok := handler.decodeLogin(writer, request)
	if !ok {
		return
	}

	session, err := handler.authService.Login(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newTokenResponse(session.Tokens, true))
}

/*
WebLogin authenticates and sets the token cookies.

POST /api/v1/auth/web/login

Response:
  - 200: tokenResponse without refresh_token; Set-Cookie for both tokens
  - 401: ErrUnauthorized: Invalid credentials
*/
func (handler *Handler) webLogin(writer http.ResponseWriter, request *http.Request) {
	input, ok := handler.decodeLogin(writer, request)
	if !ok {
		return
	}

	session, err := handler.authService.Login(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setTokenCookies(writer, session.Tokens)
	respond.OK(writer, newTokenResponse(session.Tokens, false))
}

/*
APILogout deletes the record paired with the bearer token.

POST /api/v1/auth/api/logout

Response:
  - 204: No Content: Record deleted
  - 404: ErrNotFound: No record for this access token
*/
func (handler *Handler) apiLogout(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), principal); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
WebLogout deletes the record paired with the access cookie and clears both cookies.

POST /api/v1/auth/web/logout

Description: Cookies are cleared whatever the outcome, so a stale browser
session does not keep presenting dead tokens.

Response:
  - 204: No Content: Record deleted
  - 404: ErrNotFound: No record for this access token
*/
func (handler *Handler) webLogout(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.Logout(request.Context(), principal)
	handler.clearTokenCookies(writer)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
APIRefresh rotates the pairing of the bearer token and the body refresh token.

POST /api/v1/auth/api/token/refresh

Request:
  - Header: Authorization: Bearer <access token, possibly expired>
  - Body: refreshRequest (RefreshToken)

Response:
  - 200: tokenResponse: New pair
  - 401: ErrTokenMismatch, ErrInvalidToken or ErrTokenExpired
*/
func (handler *Handler) apiRefresh(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	session, err := handler.authService.Refresh(request.Context(), principal, strings.TrimSpace(input.RefreshToken))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newTokenResponse(session.Tokens, true))
}

/*
WebRefresh rotates the pairing carried by the token cookies.

POST /api/v1/auth/web/token/refresh

Response:
  - 200: tokenResponse without refresh_token; Set-Cookie for both tokens
  - 401: ErrTokenMismatch, ErrInvalidToken or ErrTokenExpired
*/
func (handler *Handler) webRefresh(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Refresh(request.Context(), principal, principal.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setTokenCookies(writer, session.Tokens)
	respond.OK(writer, newTokenResponse(session.Tokens, false))
}

/*
Me returns the caller's profile.

GET /api/v1/auth/me

Response:
  - 200: Profile
  - 404: ErrNotFound: The account no longer exists
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.authService.Profile(request.Context(), principal.Subject)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, profile)
}

// # Cookies

// setTokenCookies stores both tokens for the refresh lifetime; the access cookie
// must outlive its token so the refresh guard can still read it.
func (handler *Handler) setTokenCookies(writer http.ResponseWriter, pair sec.TokenPair) {
	maxAge := int(pair.RefreshExpiresIn())
	http.SetCookie(writer, handler.tokenCookie(constants.AccessTokenCookieName, pair.AccessToken, maxAge, pair.RefreshExpiresAt))
	http.SetCookie(writer, handler.tokenCookie(constants.RefreshTokenCookieName, pair.RefreshToken, maxAge, pair.RefreshExpiresAt))
}

func (handler *Handler) clearTokenCookies(writer http.ResponseWriter) {
	http.SetCookie(writer, handler.tokenCookie(constants.AccessTokenCookieName, "", -1, time.Unix(0, 0)))
	http.SetCookie(writer, handler.tokenCookie(constants.RefreshTokenCookieName, "", -1, time.Unix(0, 0)))
}

func (handler *Handler) tokenCookie(name, value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     constants.AuthCookiePath,
		Domain:   handler.cookies.Domain,
		MaxAge:   maxAge,
		Expires:  expires,
		Secure:   true,
		HttpOnly: true,
		SameSite: handler.cookies.SameSite,
	}
}
