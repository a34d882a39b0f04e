// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # Built-in Roles & Permissions

const (
	// RoleAdmin is seeded by the migrations and granted by the admin bootstrap.
	RoleAdmin = "admin"

	// PermissionAccessManage allows managing roles, permissions and their assignments.
	PermissionAccessManage = "access.manage"
)

// PermissionSet is the set of permission slugs granted to a principal.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from slugs.
func NewPermissionSet(slugs ...string) PermissionSet {
	set := make(PermissionSet, len(slugs))
	for _, slug := range slugs {
		set[slug] = struct{}{}
	}
	return set
}

// Has reports whether the set grants slug.
func (set PermissionSet) Has(slug string) bool {
	_, ok := set[slug]
	return ok
}
