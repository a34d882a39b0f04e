// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package access_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/internal/users/access"
	"github.com/taibuivan/yomira-auth/pkg/pagination"
	"github.com/taibuivan/yomira-auth/pkg/uuid"
)

var errForeignKey = &pgconn.PgError{Code: "23503"}

// accessStore backs the three fake repositories with shared state.
type accessStore struct {
	mu          sync.Mutex
	permissions map[string]access.Permission
	roles       map[string]access.Role
	grants      map[string][]string        // role id -> permission ids
	holders     map[string]map[string]bool // user id -> role ids
	users       map[string]bool
	commits     int
	rollbacks   int
}

func newAccessStore() *accessStore {
	return &accessStore{
		permissions: map[string]access.Permission{},
		roles:       map[string]access.Role{},
		grants:      map[string][]string{},
		holders:     map[string]map[string]bool{},
		users:       map[string]bool{},
	}
}

func (store *accessStore) addUser() string {
	store.mu.Lock()
	defer store.mu.Unlock()
	id := uuid.New()
	store.users[id] = true
	return id
}

// # Fake Database

type fakeDB struct {
	dbx.DBTX
	store *accessStore
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{store: db.store}, nil }

type fakeTx struct {
	pgx.Tx
	store *accessStore
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.rollbacks++
	return nil
}

// # Permissions

type fakePermissions struct{ store *accessStore }

func (repo fakePermissions) List(_ context.Context, _ dbx.DBTX, params pagination.Params) ([]*access.Permission, int, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	out := make([]*access.Permission, 0, len(repo.store.permissions))
	for _, permission := range repo.store.permissions {
		out = append(out, &permission)
	}
	slices.SortFunc(out, func(a, b *access.Permission) int { return strings.Compare(a.Slug, b.Slug) })
	return window(out, params), len(out), nil
}

func (repo fakePermissions) Get(_ context.Context, _ dbx.DBTX, id string) (*access.Permission, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	permission, ok := repo.store.permissions[id]
	if !ok {
		return nil, apperr.NotFound(access.ResourcePermission)
	}
	return &permission, nil
}

func (repo fakePermissions) FindBySlugs(_ context.Context, _ dbx.DBTX, slugs []string) ([]*access.Permission, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	var out []*access.Permission
	for _, permission := range repo.store.permissions {
		if slices.Contains(slugs, permission.Slug) {
			out = append(out, &permission)
		}
	}
	return out, nil
}

func (repo fakePermissions) Create(_ context.Context, _ dbx.DBTX, permission *access.Permission) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for _, existing := range repo.store.permissions {
		if existing.Slug == permission.Slug {
			return apperr.Conflict(access.ResourcePermission + " already exists")
		}
	}
	permission.CreatedAt = time.Now().UTC()
	repo.store.permissions[permission.ID] = *permission
	return nil
}

func (repo fakePermissions) Update(_ context.Context, _ dbx.DBTX, permission *access.Permission) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if _, ok := repo.store.permissions[permission.ID]; !ok {
		return apperr.NotFound(access.ResourcePermission)
	}
	repo.store.permissions[permission.ID] = *permission
	return nil
}

func (repo fakePermissions) Delete(_ context.Context, _ dbx.DBTX, id string) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if _, ok := repo.store.permissions[id]; !ok {
		return apperr.NotFound(access.ResourcePermission)
	}
	for _, granted := range repo.store.grants {
		if slices.Contains(granted, id) {
			return errForeignKey
		}
	}
	delete(repo.store.permissions, id)
	return nil
}

// # Roles

type fakeRoles struct{ store *accessStore }

func (repo fakeRoles) List(_ context.Context, _ dbx.DBTX, params pagination.Params) ([]*access.Role, int, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	out := make([]*access.Role, 0, len(repo.store.roles))
	for _, role := range repo.store.roles {
		out = append(out, &role)
	}
	slices.SortFunc(out, func(a, b *access.Role) int { return strings.Compare(a.Slug, b.Slug) })
	return window(out, params), len(out), nil
}

func window[T any](items []T, params pagination.Params) []T {
	start := min(params.Offset(), len(items))
	end := min(start+params.Limit, len(items))
	return items[start:end]
}

func (repo fakeRoles) hydrate(role access.Role) *access.Role {
	role.Permissions = []string{}
	for _, id := range repo.store.grants[role.ID] {
		role.Permissions = append(role.Permissions, repo.store.permissions[id].Slug)
	}
	slices.Sort(role.Permissions)
	return &role
}

func (repo fakeRoles) Get(_ context.Context, _ dbx.DBTX, id string) (*access.Role, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	role, ok := repo.store.roles[id]
	if !ok {
		return nil, apperr.NotFound(access.ResourceRole)
	}
	return repo.hydrate(role), nil
}

func (repo fakeRoles) GetBySlug(_ context.Context, _ dbx.DBTX, slug string) (*access.Role, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for _, role := range repo.store.roles {
		if role.Slug == slug {
			return repo.hydrate(role), nil
		}
	}
	return nil, apperr.NotFound(access.ResourceRole)
}

func (repo fakeRoles) Create(_ context.Context, _ dbx.DBTX, role *access.Role) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for _, existing := range repo.store.roles {
		if existing.Slug == role.Slug {
			return apperr.Conflict(access.ResourceRole + " already exists")
		}
	}
	stored := *role
	stored.Permissions = nil
	repo.store.roles[role.ID] = stored
	return nil
}

func (repo fakeRoles) Update(_ context.Context, _ dbx.DBTX, role *access.Role) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if _, ok := repo.store.roles[role.ID]; !ok {
		return apperr.NotFound(access.ResourceRole)
	}
	stored := *role
	stored.Permissions = nil
	repo.store.roles[role.ID] = stored
	return nil
}

func (repo fakeRoles) Delete(_ context.Context, _ dbx.DBTX, id string) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if _, ok := repo.store.roles[id]; !ok {
		return apperr.NotFound(access.ResourceRole)
	}
	for _, held := range repo.store.holders {
		if held[id] {
			return errForeignKey
		}
	}
	delete(repo.store.roles, id)
	delete(repo.store.grants, id)
	return nil
}

func (repo fakeRoles) ReplacePermissions(_ context.Context, _ dbx.DBTX, roleID string, permissionIDs []string) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	repo.store.grants[roleID] = slices.Clone(permissionIDs)
	return nil
}

// # Assignments

type fakeAssignments struct{ store *accessStore }

func (repo fakeAssignments) Assign(_ context.Context, _ dbx.DBTX, userID, roleID string) (bool, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if !repo.store.users[userID] {
		return false, errForeignKey
	}
	if repo.store.holders[userID] == nil {
		repo.store.holders[userID] = map[string]bool{}
	}
	if repo.store.holders[userID][roleID] {
		return false, nil
	}
	repo.store.holders[userID][roleID] = true
	return true, nil
}

func (repo fakeAssignments) Revoke(_ context.Context, _ dbx.DBTX, userID, roleID string) (bool, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if !repo.store.holders[userID][roleID] {
		return false, nil
	}
	delete(repo.store.holders[userID], roleID)
	return true, nil
}

func (repo fakeAssignments) RolesOf(_ context.Context, _ dbx.DBTX, userID string) ([]*access.Role, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	out := make([]*access.Role, 0)
	for roleID := range repo.store.holders[userID] {
		role := repo.store.roles[roleID]
		out = append(out, &role)
	}
	return out, nil
}

func (repo fakeAssignments) PermissionsOf(_ context.Context, _ dbx.DBTX, userID string) ([]string, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	var out []string
	for roleID := range repo.store.holders[userID] {
		for _, permissionID := range repo.store.grants[roleID] {
			out = append(out, repo.store.permissions[permissionID].Slug)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// # Harness

func newAccessService(t *testing.T) (*access.Service, *accessStore) {
	t.Helper()
	store := newAccessStore()
	service := access.NewService(
		&fakeDB{store: store},
		fakePermissions{store: store},
		fakeRoles{store: store},
		fakeAssignments{store: store},
	)
	return service, store
}
