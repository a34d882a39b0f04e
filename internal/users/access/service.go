// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package access

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/internal/platform/validate"
	"github.com/taibuivan/yomira-auth/pkg/pagination"
	"github.com/taibuivan/yomira-auth/pkg/slug"
	"github.com/taibuivan/yomira-auth/pkg/uuid"
)

// Database is the handle the service runs on: single statements go straight
// to it, multi-step writes open a transaction through it.
type Database interface {
	dbx.DBTX
	dbx.Beginner
}

// Service implements role and permission management.
type Service struct {
	db          Database
	permissions PermissionRepository
	roles       RoleRepository
	assignments AssignmentRepository
}

// NewService wires the service to its repositories.
func NewService(db Database, permissions PermissionRepository, roles RoleRepository, assignments AssignmentRepository) *Service {
	return &Service{
		db:          db,
		permissions: permissions,
		roles:       roles,
		assignments: assignments,
	}
}

// # Inputs

// PermissionInput carries the writable fields of a permission.
//
// An empty Slug is derived from Name.
type PermissionInput struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleInput carries the writable fields of a role. Permissions lists permission slugs.
type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// # Permissions

func (service *Service) ListPermissions(ctx context.Context, params pagination.Params) (pagination.Page[*Permission], error) {
	permissions, total, err := service.permissions.List(ctx, service.db, params)
	if err != nil {
		return pagination.Page[*Permission]{}, err
	}
	return pagination.NewPage(permissions, params, total), nil
}

func (service *Service) GetPermission(ctx context.Context, id string) (*Permission, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return service.permissions.Get(ctx, service.db, id)
}

/*
CreatePermission validates and stores a new permission.

Parameters:
  - ctx: context.Context
  - input: PermissionInput

Returns:
  - *Permission: The stored permission
  - error: Validation errors or apperr.Conflict when the slug is taken
*/
func (service *Service) CreatePermission(ctx context.Context, input PermissionInput) (*Permission, error) {
	permission, err := newPermission(input)
	if err != nil {
		return nil, err
	}
	permission.ID = uuid.New()

	if err := service.permissions.Create(ctx, service.db, permission); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "access_permission_created", slog.String("slug", permission.Slug))
	return permission, nil
}

func (service *Service) UpdatePermission(ctx context.Context, id string, input PermissionInput) (*Permission, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	permission, err := newPermission(input)
	if err != nil {
		return nil, err
	}
	permission.ID = id

	if err := service.permissions.Update(ctx, service.db, permission); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "access_permission_updated", slog.String("permission_id", id))
	return service.permissions.Get(ctx, service.db, id)
}

// DeletePermission refuses to delete a permission that a role still grants.
func (service *Service) DeletePermission(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := service.permissions.Delete(ctx, service.db, id); err != nil {
		if dberr.IsForeignKeyViolation(err) {
			return apperr.Forbidden("Permission is still granted to a role").WithCause(err)
		}
		return dberr.Wrap(err, ResourcePermission)
	}

	ctxutil.GetLogger(ctx).WarnContext(ctx, "access_permission_deleted", slog.String("permission_id", id))
	return nil
}

func newPermission(input PermissionInput) (*Permission, error) {
	name := strings.TrimSpace(input.Name)
	permissionSlug := strings.TrimSpace(input.Slug)
	if permissionSlug == "" {
		permissionSlug = slug.From(name)
	}

	validator := &validate.Validator{}
	validator.Required(FieldName, name).
		MaxLen(FieldName, name, NameMaxLength).
		Required(FieldSlug, permissionSlug).
		MaxLen(FieldSlug, permissionSlug, NameMaxLength).
		PermissionSlug(FieldSlug, permissionSlug).
		MaxLen(FieldDescription, input.Description, DescriptionMaxLength)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	return &Permission{
		Slug:        permissionSlug,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}, nil
}

// # Roles

// ListRoles pages through roles without their permissions; fetch a single role for those.
func (service *Service) ListRoles(ctx context.Context, params pagination.Params) (pagination.Page[*Role], error) {
	roles, total, err := service.roles.List(ctx, service.db, params)
	if err != nil {
		return pagination.Page[*Role]{}, err
	}
	return pagination.NewPage(roles, params, total), nil
}

func (service *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return service.roles.Get(ctx, service.db, id)
}

/*
CreateRole stores a role and links its permissions in one transaction.

Description: The slug is derived from the name. Every named permission must
exist; the unknown ones are listed in the validation error details.

Returns:
  - *Role: The stored role with its permissions
  - error: Validation errors or apperr.Conflict when the slug is taken
*/
func (service *Service) CreateRole(ctx context.Context, input RoleInput) (*Role, error) {
	role, err := newRole(input)
	if err != nil {
		return nil, err
	}
	role.ID = uuid.New()

	err = dbx.WithTx(ctx, service.db, func(ctx context.Context, tx dbx.DBTX) error {
		permissionIDs, err := service.resolvePermissions(ctx, tx, role.Permissions)
		if err != nil {
			return err
		}
		if err := service.roles.Create(ctx, tx, role); err != nil {
			return err
		}
		return service.roles.ReplacePermissions(ctx, tx, role.ID, permissionIDs)
	})
	if err != nil {
		return nil, asPersistence(err)
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "access_role_created",
		slog.String("slug", role.Slug),
		slog.Int("permissions", len(role.Permissions)),
	)
	return role, nil
}

// UpdateRole replaces the role's fields and its exact permission set.
func (service *Service) UpdateRole(ctx context.Context, id string, input RoleInput) (*Role, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	role, err := newRole(input)
	if err != nil {
		return nil, err
	}
	role.ID = id

	var updated *Role
	err = dbx.WithTx(ctx, service.db, func(ctx context.Context, tx dbx.DBTX) error {
		permissionIDs, err := service.resolvePermissions(ctx, tx, role.Permissions)
		if err != nil {
			return err
		}
		if err := service.roles.Update(ctx, tx, role); err != nil {
			return err
		}
		if err := service.roles.ReplacePermissions(ctx, tx, role.ID, permissionIDs); err != nil {
			return err
		}
		updated, err = service.roles.Get(ctx, tx, role.ID)
		return err
	})
	if err != nil {
		return nil, asPersistence(err)
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "access_role_updated", slog.String("role_id", id))
	return updated, nil
}

// DeleteRole refuses to delete a role that users still hold.
func (service *Service) DeleteRole(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := service.roles.Delete(ctx, service.db, id); err != nil {
		if dberr.IsForeignKeyViolation(err) {
			return apperr.Forbidden("Role is still assigned to users").WithCause(err)
		}
		return dberr.Wrap(err, ResourceRole)
	}

	ctxutil.GetLogger(ctx).WarnContext(ctx, "access_role_deleted", slog.String("role_id", id))
	return nil
}

func newRole(input RoleInput) (*Role, error) {
	name := strings.TrimSpace(input.Name)
	roleSlug := slug.From(name)

	validator := &validate.Validator{}
	validator.Required(FieldName, name).
		MaxLen(FieldName, name, NameMaxLength).
		Custom(FieldName, name != "" && roleSlug == "", "Must contain Latin letters or digits").
		MaxLen(FieldDescription, input.Description, DescriptionMaxLength)

	for _, permission := range input.Permissions {
		validator.PermissionSlug(FieldPermissions, permission)
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	permissions := slices.Clone(input.Permissions)
	slices.Sort(permissions)

	return &Role{
		Slug:        roleSlug,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Permissions: slices.Compact(permissions),
	}, nil
}

// resolvePermissions maps slugs to permission ids, failing with every unknown slug listed.
func (service *Service) resolvePermissions(ctx context.Context, db dbx.DBTX, slugs []string) ([]string, error) {
	found, err := service.permissions.FindBySlugs(ctx, db, slugs)
	if err != nil {
		return nil, err
	}

	known := make(map[string]string, len(found))
	for _, permission := range found {
		known[permission.Slug] = permission.ID
	}

	ids := make([]string, 0, len(slugs))
	var missing []apperr.FieldError
	for _, permissionSlug := range slugs {
		id, ok := known[permissionSlug]
		if !ok {
			missing = append(missing, apperr.FieldError{Field: FieldPermissions, Message: permissionSlug})
			continue
		}
		ids = append(ids, id)
	}

	if len(missing) > 0 {
		return nil, apperr.ValidationError("Unknown permissions", missing...)
	}
	return ids, nil
}

// # Assignments

// AssignRole grants the role with roleSlug to the user. Granting a held role is a no-op.
func (service *Service) AssignRole(ctx context.Context, userID, roleSlug string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	role, err := service.roles.GetBySlug(ctx, service.db, roleSlug)
	if err != nil {
		return err
	}

	created, err := service.assignments.Assign(ctx, service.db, userID, role.ID)
	if err != nil {
		if dberr.IsForeignKeyViolation(err) {
			return apperr.NotFound(ResourceUser).WithCause(err)
		}
		return dberr.Wrap(err, ResourceRole)
	}

	if created {
		ctxutil.GetLogger(ctx).InfoContext(ctx, "access_role_assigned",
			slog.String("target_user_id", userID),
			slog.String("role", role.Slug),
		)
	}
	return nil
}

// RevokeRole removes the role from the user; revoking a role the user lacks is NotFound.
func (service *Service) RevokeRole(ctx context.Context, userID, roleSlug string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	role, err := service.roles.GetBySlug(ctx, service.db, roleSlug)
	if err != nil {
		return err
	}

	removed, err := service.assignments.Revoke(ctx, service.db, userID, role.ID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("Role assignment")
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "access_role_revoked",
		slog.String("target_user_id", userID),
		slog.String("role", role.Slug),
	)
	return nil
}

// UserRoles lists the roles assigned to the user.
func (service *Service) UserRoles(ctx context.Context, userID string) ([]*Role, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return service.assignments.RolesOf(ctx, service.db, userID)
}

// UserPermissions lists the permissions the user holds through any role, ordered by slug.
func (service *Service) UserPermissions(ctx context.Context, userID string) ([]*Permission, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	slugs, err := service.assignments.PermissionsOf(ctx, service.db, userID)
	if err != nil {
		return nil, err
	}
	if len(slugs) == 0 {
		return []*Permission{}, nil
	}

	permissions, err := service.permissions.FindBySlugs(ctx, service.db, slugs)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(permissions, func(a, b *Permission) int { return strings.Compare(a.Slug, b.Slug) })
	return permissions, nil
}

/*
HasAnyRole reports whether the user holds at least one of roleSlugs.

Returns:
  - bool: true on the first held role
  - error: ValidationError for an empty query, NotFound when no requested role exists
*/
func (service *Service) HasAnyRole(ctx context.Context, userID string, roleSlugs []string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}
	if len(roleSlugs) == 0 {
		return false, apperr.ValidationError("At least one role is required",
			apperr.FieldError{Field: FieldRoles, Message: "required"})
	}

	known := 0
	for _, roleSlug := range roleSlugs {
		_, err := service.roles.GetBySlug(ctx, service.db, roleSlug)
		if apperr.HasCode(err, apperr.CodeNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		known++
	}
	if known == 0 {
		return false, apperr.NotFound(ResourceRole)
	}

	held, err := service.assignments.RolesOf(ctx, service.db, userID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(held, func(role *Role) bool {
		return slices.Contains(roleSlugs, role.Slug)
	}), nil
}

/*
HasAnyPermission reports whether the user is granted at least one of permissionSlugs.

Returns:
  - bool: true on the first granted permission
  - error: ValidationError for an empty query, NotFound when no requested permission exists
*/
func (service *Service) HasAnyPermission(ctx context.Context, userID string, permissionSlugs []string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}
	if len(permissionSlugs) == 0 {
		return false, apperr.ValidationError("At least one permission is required",
			apperr.FieldError{Field: FieldPermissions, Message: "required"})
	}

	found, err := service.permissions.FindBySlugs(ctx, service.db, permissionSlugs)
	if err != nil {
		return false, err
	}
	if len(found) == 0 {
		return false, apperr.NotFound(ResourcePermission)
	}

	granted, err := service.Permissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(found, func(permission *Permission) bool {
		return granted.Has(permission.Slug)
	}), nil
}

// Permissions resolves the permission set granted to the user through their roles.
func (service *Service) Permissions(ctx context.Context, userID string) (sec.PermissionSet, error) {
	slugs, err := service.assignments.PermissionsOf(ctx, service.db, userID)
	if err != nil {
		return nil, err
	}
	return sec.NewPermissionSet(slugs...), nil
}

// # Helpers

func validateID(id string) error {
	return (&validate.Validator{}).UUID("id", id).Err()
}

func validateUserID(id string) error {
	return (&validate.Validator{}).UUID(FieldUserID, id).Err()
}

func asPersistence(err error) error {
	if appError := apperr.As(err); appError != nil {
		return appError
	}
	return apperr.PersistenceFailure(err)
}
