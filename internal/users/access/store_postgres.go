// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package access

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/pkg/pagination"
)

// # Permission Repository

// PostgresPermissionRepository implements [PermissionRepository] over users.permission.
type PostgresPermissionRepository struct{}

// NewPermissionRepository creates a new PostgreSQL implementation of the PermissionRepository.
func NewPermissionRepository() *PostgresPermissionRepository {
	return &PostgresPermissionRepository{}
}

const permissionColumns = `id, slug, name, description, createdat`

// List returns one page of permissions ordered by slug, plus the total count.
func (repository *PostgresPermissionRepository) List(context context.Context, db dbx.DBTX, params pagination.Params) ([]*Permission, int, error) {
	var total int
	if err := db.QueryRow(context, `SELECT COUNT(*) FROM users.permission`).Scan(&total); err != nil {
		return nil, 0, dberr.Wrap(fmt.Errorf("postgres_permission_repo_count_failed: %w", err), ResourcePermission)
	}

	rows, err := db.Query(context,
		`SELECT `+permissionColumns+` FROM users.permission ORDER BY slug ASC LIMIT $1 OFFSET $2`,
		params.Limit, params.Offset(),
	)
	if err != nil {
		return nil, 0, dberr.Wrap(fmt.Errorf("postgres_permission_repo_list_failed: %w", err), ResourcePermission)
	}

	permissions, err := collectPermissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return permissions, total, nil
}

func (repository *PostgresPermissionRepository) Get(context context.Context, db dbx.DBTX, id string) (*Permission, error) {
	permission := &Permission{}
	err := db.QueryRow(context, `SELECT `+permissionColumns+` FROM users.permission WHERE id = $1`, id).Scan(
		&permission.ID, &permission.Slug, &permission.Name, &permission.Description, &permission.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, ResourcePermission)
	}
	return permission, nil
}

func (repository *PostgresPermissionRepository) FindBySlugs(context context.Context, db dbx.DBTX, slugs []string) ([]*Permission, error) {
	if len(slugs) == 0 {
		return []*Permission{}, nil
	}

	rows, err := db.Query(context, `SELECT `+permissionColumns+` FROM users.permission WHERE slug = ANY($1) ORDER BY slug ASC`, slugs)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_permission_repo_find_by_slugs_failed: %w", err), ResourcePermission)
	}
	return collectPermissions(rows)
}

func (repository *PostgresPermissionRepository) Create(context context.Context, db dbx.DBTX, permission *Permission) error {
	const query = `
		INSERT INTO users.permission (id, slug, name, description, createdat)
		VALUES ($1, $2, $3, $4, $5)`

	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(context, query, permission.ID, permission.Slug, permission.Name, permission.Description, permission.CreatedAt)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_permission_repo_create_failed: %w", err), ResourcePermission)
	}
	return nil
}

func (repository *PostgresPermissionRepository) Update(context context.Context, db dbx.DBTX, permission *Permission) error {
	const query = `UPDATE users.permission SET slug = $2, name = $3, description = $4 WHERE id = $1`

	tag, err := db.Exec(context, query, permission.ID, permission.Slug, permission.Name, permission.Description)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_permission_repo_update_failed: %w", err), ResourcePermission)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, ResourcePermission)
	}
	return nil
}

func (repository *PostgresPermissionRepository) Delete(context context.Context, db dbx.DBTX, id string) error {
	tag, err := db.Exec(context, `DELETE FROM users.permission WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres_permission_repo_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, ResourcePermission)
	}
	return nil
}

func collectPermissions(rows pgx.Rows) ([]*Permission, error) {
	defer rows.Close()

	permissions := make([]*Permission, 0)
	for rows.Next() {
		permission := &Permission{}
		if err := rows.Scan(&permission.ID, &permission.Slug, &permission.Name, &permission.Description, &permission.CreatedAt); err != nil {
			return nil, dberr.Wrap(fmt.Errorf("postgres_permission_repo_scan_failed: %w", err), ResourcePermission)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_permission_repo_rows_failed: %w", err), ResourcePermission)
	}
	return permissions, nil
}

// # Role Repository

// PostgresRoleRepository implements [RoleRepository] over users.role and users.rolepermission.
type PostgresRoleRepository struct{}

// NewRoleRepository creates a new PostgreSQL implementation of the RoleRepository.
func NewRoleRepository() *PostgresRoleRepository {
	return &PostgresRoleRepository{}
}

const roleColumns = `r.id, r.slug, r.name, r.description, r.createdat, r.updatedat`

// List returns one page of roles ordered by slug. Permissions are not hydrated.
func (repository *PostgresRoleRepository) List(context context.Context, db dbx.DBTX, params pagination.Params) ([]*Role, int, error) {
	var total int
	if err := db.QueryRow(context, `SELECT COUNT(*) FROM users.role`).Scan(&total); err != nil {
		return nil, 0, dberr.Wrap(fmt.Errorf("postgres_role_repo_count_failed: %w", err), ResourceRole)
	}

	rows, err := db.Query(context,
		`SELECT `+roleColumns+` FROM users.role r ORDER BY r.slug ASC LIMIT $1 OFFSET $2`,
		params.Limit, params.Offset(),
	)
	if err != nil {
		return nil, 0, dberr.Wrap(fmt.Errorf("postgres_role_repo_list_failed: %w", err), ResourceRole)
	}

	roles, err := collectRoles(rows)
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

/*
Get retrieves a role and the slugs of its permissions.

Parameters:
  - context: context.Context
  - db: dbx.DBTX
  - id: string

Returns:
  - *Role: Role with Permissions populated
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresRoleRepository) Get(context context.Context, db dbx.DBTX, id string) (*Role, error) {
	return repository.getBy(context, db, `r.id = $1`, id)
}

// GetBySlug retrieves a role by its slug.
func (repository *PostgresRoleRepository) GetBySlug(context context.Context, db dbx.DBTX, slug string) (*Role, error) {
	return repository.getBy(context, db, `r.slug = $1`, slug)
}

func (repository *PostgresRoleRepository) getBy(context context.Context, db dbx.DBTX, predicate string, value string) (*Role, error) {
	role := &Role{}
	err := db.QueryRow(context, `SELECT `+roleColumns+` FROM users.role r WHERE `+predicate, value).Scan(
		&role.ID, &role.Slug, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, ResourceRole)
	}

	const permissionsQuery = `
		SELECT p.slug
		FROM users.rolepermission rp
		JOIN users.permission p ON p.id = rp.permissionid
		WHERE rp.roleid = $1
		ORDER BY p.slug ASC`

	rows, err := db.Query(context, permissionsQuery, role.ID)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_role_repo_permissions_failed: %w", err), ResourceRole)
	}

	slugs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_role_repo_permissions_failed: %w", err), ResourceRole)
	}

	role.Permissions = slugs
	return role, nil
}

func (repository *PostgresRoleRepository) Create(context context.Context, db dbx.DBTX, role *Role) error {
	const query = `
		INSERT INTO users.role (id, slug, name, description, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now

	_, err := db.Exec(context, query, role.ID, role.Slug, role.Name, role.Description, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_role_repo_create_failed: %w", err), ResourceRole)
	}
	return nil
}

func (repository *PostgresRoleRepository) Update(context context.Context, db dbx.DBTX, role *Role) error {
	const query = `UPDATE users.role SET slug = $2, name = $3, description = $4, updatedat = $5 WHERE id = $1`

	role.UpdatedAt = time.Now().UTC()

	tag, err := db.Exec(context, query, role.ID, role.Slug, role.Name, role.Description, role.UpdatedAt)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_role_repo_update_failed: %w", err), ResourceRole)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, ResourceRole)
	}
	return nil
}

func (repository *PostgresRoleRepository) Delete(context context.Context, db dbx.DBTX, id string) error {
	tag, err := db.Exec(context, `DELETE FROM users.role WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, ResourceRole)
	}
	return nil
}

func (repository *PostgresRoleRepository) ReplacePermissions(context context.Context, db dbx.DBTX, roleID string, permissionIDs []string) error {
	if _, err := db.Exec(context, `DELETE FROM users.rolepermission WHERE roleid = $1`, roleID); err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_role_repo_clear_permissions_failed: %w", err), ResourceRole)
	}

	if len(permissionIDs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO users.rolepermission (roleid, permissionid)
		SELECT $1, unnest($2::uuid[])`

	if _, err := db.Exec(context, query, roleID, permissionIDs); err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_role_repo_link_permissions_failed: %w", err), ResourceRole)
	}
	return nil
}

func collectRoles(rows pgx.Rows) ([]*Role, error) {
	defer rows.Close()

	roles := make([]*Role, 0)
	for rows.Next() {
		role := &Role{}
		if err := rows.Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, dberr.Wrap(fmt.Errorf("postgres_role_repo_scan_failed: %w", err), ResourceRole)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_role_repo_rows_failed: %w", err), ResourceRole)
	}
	return roles, nil
}

// # Assignment Repository

// PostgresAssignmentRepository implements [AssignmentRepository] over users.userrole.
type PostgresAssignmentRepository struct{}

// NewAssignmentRepository creates a new PostgreSQL implementation of the AssignmentRepository.
func NewAssignmentRepository() *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{}
}

// Assign links the user to the role. An unknown user surfaces as the raw foreign key violation.
func (repository *PostgresAssignmentRepository) Assign(context context.Context, db dbx.DBTX, userID, roleID string) (bool, error) {
	const query = `INSERT INTO users.userrole (userid, roleid) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	tag, err := db.Exec(context, query, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("postgres_assignment_repo_assign_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (repository *PostgresAssignmentRepository) Revoke(context context.Context, db dbx.DBTX, userID, roleID string) (bool, error) {
	tag, err := db.Exec(context, `DELETE FROM users.userrole WHERE userid = $1 AND roleid = $2`, userID, roleID)
	if err != nil {
		return false, dberr.Wrap(fmt.Errorf("postgres_assignment_repo_revoke_failed: %w", err), ResourceRole)
	}
	return tag.RowsAffected() > 0, nil
}

func (repository *PostgresAssignmentRepository) RolesOf(context context.Context, db dbx.DBTX, userID string) ([]*Role, error) {
	query := `SELECT ` + roleColumns + `
		FROM users.role r
		JOIN users.userrole ur ON ur.roleid = r.id
		WHERE ur.userid = $1
		ORDER BY r.slug ASC`

	rows, err := db.Query(context, query, userID)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_assignment_repo_roles_failed: %w", err), ResourceRole)
	}
	return collectRoles(rows)
}

func (repository *PostgresAssignmentRepository) PermissionsOf(context context.Context, db dbx.DBTX, userID string) ([]string, error) {
	const query = `
		SELECT DISTINCT p.slug
		FROM users.userrole ur
		JOIN users.rolepermission rp ON rp.roleid = ur.roleid
		JOIN users.permission p ON p.id = rp.permissionid
		WHERE ur.userid = $1`

	rows, err := db.Query(context, query, userID)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_assignment_repo_permissions_failed: %w", err), ResourcePermission)
	}

	slugs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_assignment_repo_permissions_failed: %w", err), ResourcePermission)
	}
	return slugs, nil
}
