// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package access manages roles, permissions and the roles held by each user.
//
// # Model
//
// Permissions are named capabilities identified by a slug (e.g. "access.manage").
// Roles group permissions and are assigned to users. A user's effective
// permissions are the union of the permissions of every role they hold, which
// [Service.Permissions] resolves for the RequirePermission middleware.
package access

import "time"

// # Constants

const (
	ResourceRole       = "Role"
	ResourcePermission = "Permission"
	ResourceUser       = "User"

	FieldSlug        = "slug"
	FieldName        = "name"
	FieldDescription = "description"
	FieldPermissions = "permissions"
	FieldRole        = "role"
	FieldRoles       = "roles"
	FieldUserID      = "user_id"

	NameMaxLength        = 100
	DescriptionMaxLength = 500
)

// # Entities

// Permission is a single grantable capability.
type Permission struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions under a slug derived from its name.
//
// Permissions holds the slugs of the granted permissions; it is populated by
// single-role reads and left nil by listings.
type Role struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
