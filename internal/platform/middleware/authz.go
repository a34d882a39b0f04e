// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/respond"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// Authenticator turns a request's credentials into a validated principal.
//
// # Why an interface?
//
// Defining Authenticator here decouples the middleware from the guard
// implementations in the auth domain, so the header guard, the cookie guard
// and their refresh-flow variants all plug into the same middleware.
type Authenticator interface {
	Authenticate(request *http.Request) (*sec.Principal, error)
}

// PermissionResolver loads the permission slugs granted to a user.
type PermissionResolver interface {
	Permissions(ctx context.Context, userID string) (sec.PermissionSet, error)
}

// Authenticate runs guard on every request and rejects the ones it refuses.
//
// # Flow
//  1. Delegate credential extraction and verification to the guard.
//  2. On failure, answer with the guard's error (CREDENTIALS_MISSING,
//     INVALID_TOKEN or TOKEN_EXPIRED, each with its challenge header).
//  3. Inject [*sec.Principal] into the request context for downstream use.
func Authenticate(guard Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal, err := guard.Authenticate(request)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			recordSubject(request.Context(), principal.Subject)

			ctx := ctxutil.WithPrincipal(request.Context(), principal)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetPrincipal(request.Context()) == nil {
			respond.Error(writer, request, apperr.CredentialsMissing())
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequirePermission blocks requests whose principal lacks the permission slug.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically implies
// [RequireAuth] so you don't need to mount both.
//
// # Flow
//  1. Check if [*sec.Principal] exists in context (implies AuthN).
//  2. Resolve the caller's permissions through their roles.
//  3. If the slug is not granted, abort with HTTP 403 Forbidden.
func RequirePermission(resolver PermissionResolver, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := ctxutil.GetPrincipal(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if principal == nil {
				respond.Error(writer, request, apperr.CredentialsMissing())
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			granted, err := resolver.Permissions(request.Context(), principal.Subject)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}
			if !granted.Has(permission) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			ctx := ctxutil.WithPermissions(request.Context(), granted)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}
