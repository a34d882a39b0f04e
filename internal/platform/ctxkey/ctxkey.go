// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxkey defines the typed keys under which middleware stores
// per-request values. Only [ctxutil] should read or write them.
package ctxkey

// key is unexported so no other package can construct a colliding key.
type key uint8

const (
	// KeyRequestID holds the X-Request-ID correlation value.
	KeyRequestID key = iota + 1

	// KeyLogger holds the request-scoped *slog.Logger.
	KeyLogger

	// KeyPrincipal holds the *sec.Principal bound by an authentication guard.
	KeyPrincipal

	// KeyPermissions holds the sec.PermissionSet resolved by RequirePermission.
	KeyPermissions
)
