// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package bootstrap prepares state the server needs before it accepts traffic.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/internal/users/auth"
	"github.com/taibuivan/yomira-auth/pkg/masking"
)

// AdminName is the display name of a bootstrapped administrator.
const AdminName = "Administrator"

// Admin holds the configured administrator credentials.
type Admin struct {
	Email    string
	Password string
	Mobile   string
}

// Accounts registers and looks up local accounts. [*auth.Service] satisfies it.
type Accounts interface {
	Register(ctx context.Context, input auth.RegisterInput) (*auth.User, error)
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
}

// RoleAssigner grants roles by slug. [*access.Service] satisfies it.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID, roleSlug string) error
}

/*
EnsureAdmin makes sure the configured administrator exists and holds the admin role.

Description: Running it again is harmless. An account already registered under
the email is reused as is (its password is not reset) and only the role grant
is re-applied.

Parameters:
  - ctx: context.Context
  - admin: Admin (credentials from configuration)
  - accounts: Accounts
  - roles: RoleAssigner

Returns:
  - error: Registration or assignment failures
*/
func EnsureAdmin(ctx context.Context, admin Admin, accounts Accounts, roles RoleAssigner) error {
	if admin.Email == "" || admin.Password == "" {
		return fmt.Errorf("bootstrap_admin_missing_credentials")
	}

	logger := ctxutil.GetLogger(ctx)
	maskedEmail := masking.Mask(auth.NormalizeEmail(admin.Email), masking.DefaultRate)

	// 1. Reuse or create the account
	user, err := accounts.FindByEmail(ctx, admin.Email)
	switch {
	case err == nil:
		logger.Info("bootstrap_admin_exists", slog.String("email", maskedEmail))

	case apperr.HasCode(err, apperr.CodeNotFound):
		user, err = accounts.Register(ctx, auth.RegisterInput{
			Name:     AdminName,
			Email:    admin.Email,
			Mobile:   admin.Mobile,
			Password: admin.Password,
		})
		if err != nil {
			return fmt.Errorf("bootstrap_admin_register_failed: %w", err)
		}
		logger.Info("bootstrap_admin_created",
			slog.String("email", maskedEmail),
			slog.String("user_id", user.ID),
		)

	default:
		return fmt.Errorf("bootstrap_admin_lookup_failed: %w", err)
	}

	// 2. Grant the seeded role
	if err := roles.AssignRole(ctx, user.ID, sec.RoleAdmin); err != nil {
		return fmt.Errorf("bootstrap_admin_assign_failed: %w", err)
	}

	return nil
}
