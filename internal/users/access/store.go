// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package access

import (
	"context"

	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/pkg/pagination"
)

/*
PermissionRepository defines persistence for permissions.

Description: Every method takes the handle to run on so the service can group
calls into one transaction.
*/
type PermissionRepository interface {
	// List returns one page and the total number of permissions.
	List(context context.Context, db dbx.DBTX, params pagination.Params) ([]*Permission, int, error)
	Get(context context.Context, db dbx.DBTX, id string) (*Permission, error)

	// FindBySlugs returns the permissions among slugs that exist; unknown slugs are skipped.
	FindBySlugs(context context.Context, db dbx.DBTX, slugs []string) ([]*Permission, error)

	Create(context context.Context, db dbx.DBTX, permission *Permission) error
	Update(context context.Context, db dbx.DBTX, permission *Permission) error

	// Delete returns the raw foreign key violation when a role still grants the permission.
	Delete(context context.Context, db dbx.DBTX, id string) error
}

/*
RoleRepository defines persistence for roles and their permission links.
*/
type RoleRepository interface {
	List(context context.Context, db dbx.DBTX, params pagination.Params) ([]*Role, int, error)

	// Get and GetBySlug hydrate [Role.Permissions].
	Get(context context.Context, db dbx.DBTX, id string) (*Role, error)
	GetBySlug(context context.Context, db dbx.DBTX, slug string) (*Role, error)

	Create(context context.Context, db dbx.DBTX, role *Role) error
	Update(context context.Context, db dbx.DBTX, role *Role) error

	// Delete returns the raw foreign key violation when users still hold the role.
	Delete(context context.Context, db dbx.DBTX, id string) error

	// ReplacePermissions makes permissionIDs the exact permission set of the role.
	ReplacePermissions(context context.Context, db dbx.DBTX, roleID string, permissionIDs []string) error
}

/*
AssignmentRepository defines persistence for user-role links.
*/
type AssignmentRepository interface {
	// Assign is idempotent; it reports whether a new link was created.
	Assign(context context.Context, db dbx.DBTX, userID, roleID string) (bool, error)
	Revoke(context context.Context, db dbx.DBTX, userID, roleID string) (bool, error)

	RolesOf(context context.Context, db dbx.DBTX, userID string) ([]*Role, error)

	// PermissionsOf returns the distinct permission slugs granted through the user's roles.
	PermissionsOf(context context.Context, db dbx.DBTX, userID string) ([]string, error)
}
