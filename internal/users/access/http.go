// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package access

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-auth/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-auth/internal/platform/request"
	"github.com/taibuivan/yomira-auth/internal/platform/respond"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/pagination"
)

// Handler exposes role and permission management over HTTP.
type Handler struct {
	service *Service
	guard   middleware.Authenticator
}

// NewHandler constructs a [Handler]; guard authenticates every route.
func NewHandler(service *Service, guard middleware.Authenticator) *Handler {
	return &Handler{service: service, guard: guard}
}

// Routes returns a [chi.Router] with the management endpoints.
//
// Every route requires the access.manage permission.
//
// # Endpoints
//   - GET|POST          /permissions
//   - GET|PUT|DELETE    /permissions/{id}
//   - GET|POST          /roles
//   - GET|PUT|DELETE    /roles/{id}
//   - GET               /users/{userID}/roles
//   - PUT|DELETE        /users/{userID}/roles/{role}
//   - GET               /users/{userID}/permissions
//   - GET               /users/{userID}/has/role?roles=...
//   - GET               /users/{userID}/has/permission?permissions=...
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Authenticate(handler.guard))
	router.Use(middleware.RequirePermission(handler.service, sec.PermissionAccessManage))

	router.Route("/permissions", func(route chi.Router) {
		route.Get("/", handler.listPermissions)
		route.Post("/", handler.createPermission)
		route.Get("/{id}", handler.getPermission)
		route.Put("/{id}", handler.updatePermission)
		route.Delete("/{id}", handler.deletePermission)
	})

	router.Route("/roles", func(route chi.Router) {
		route.Get("/", handler.listRoles)
		route.Post("/", handler.createRole)
		route.Get("/{id}", handler.getRole)
		route.Put("/{id}", handler.updateRole)
		route.Delete("/{id}", handler.deleteRole)
	})

	router.Route("/users/{userID}/roles", func(route chi.Router) {
		route.Get("/", handler.userRoles)
		route.Put("/{role}", handler.assignRole)
		route.Delete("/{role}", handler.revokeRole)
	})

	router.Get("/users/{userID}/permissions", handler.userPermissions)
	router.Get("/users/{userID}/has/role", handler.hasRole)
	router.Get("/users/{userID}/has/permission", handler.hasPermission)

	return router
}

// # Permissions

func (handler *Handler) listPermissions(writer http.ResponseWriter, request *http.Request) {
	page, err := handler.service.ListPermissions(request.Context(), pagination.FromQuery(request.URL.Query()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, page)
}

func (handler *Handler) getPermission(writer http.ResponseWriter, request *http.Request) {
	permission, err := handler.service.GetPermission(request.Context(), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, permission)
}

/*
CreatePermission handles the creation of a permission.

POST /api/v1/access/permissions

Response:
  - 201: Permission
  - 400: ErrValidation: Bad slug or name
  - 409: ErrConflict: Slug already taken
*/
func (handler *Handler) createPermission(writer http.ResponseWriter, request *http.Request) {
	var input PermissionInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	permission, err := handler.service.CreatePermission(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, permission)
}

func (handler *Handler) updatePermission(writer http.ResponseWriter, request *http.Request) {
	var input PermissionInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	permission, err := handler.service.UpdatePermission(request.Context(), requestutil.Param(request, "id"), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, permission)
}

/*
DeletePermission removes a permission.

DELETE /api/v1/access/permissions/{id}

Response:
  - 204: No Content
  - 403: ErrForbidden: A role still grants the permission
  - 404: ErrNotFound
*/
func (handler *Handler) deletePermission(writer http.ResponseWriter, request *http.Request) {
	if err := handler.service.DeletePermission(request.Context(), requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// # Roles

func (handler *Handler) listRoles(writer http.ResponseWriter, request *http.Request) {
	page, err := handler.service.ListRoles(request.Context(), pagination.FromQuery(request.URL.Query()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, page)
}

func (handler *Handler) getRole(writer http.ResponseWriter, request *http.Request) {
	role, err := handler.service.GetRole(request.Context(), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, role)
}

/*
CreateRole handles the creation of a role with its permissions.

POST /api/v1/access/roles

Request:
  - Body: RoleInput (Name, Description, Permissions)

Response:
  - 201: Role
  - 400: ErrValidation: Unknown permissions are listed in details
  - 409: ErrConflict: A role with the derived slug exists
*/
func (handler *Handler) createRole(writer http.ResponseWriter, request *http.Request) {
	var input RoleInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.service.CreateRole(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, role)
}

func (handler *Handler) updateRole(writer http.ResponseWriter, request *http.Request) {
	var input RoleInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.service.UpdateRole(request.Context(), requestutil.Param(request, "id"), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, role)
}

func (handler *Handler) deleteRole(writer http.ResponseWriter, request *http.Request) {
	if err := handler.service.DeleteRole(request.Context(), requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// # Assignments

func (handler *Handler) userRoles(writer http.ResponseWriter, request *http.Request) {
	roles, err := handler.service.UserRoles(request.Context(), requestutil.Param(request, "userID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, roles)
}

func (handler *Handler) assignRole(writer http.ResponseWriter, request *http.Request) {
	err := handler.service.AssignRole(request.Context(), requestutil.Param(request, "userID"), requestutil.Param(request, "role"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *Handler) revokeRole(writer http.ResponseWriter, request *http.Request) {
	err := handler.service.RevokeRole(request.Context(), requestutil.Param(request, "userID"), requestutil.Param(request, "role"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *Handler) userPermissions(writer http.ResponseWriter, request *http.Request) {
	permissions, err := handler.service.UserPermissions(request.Context(), requestutil.Param(request, "userID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, permissions)
}

// # Checks

// checkResult answers the has/role and has/permission queries.
type checkResult struct {
	Result bool `json:"result"`
}

/*
HasRole reports whether the user holds any of the queried roles.

GET /api/v1/access/users/{userID}/has/role?roles=admin&roles=support-agent

Response:
  - 200: checkResult
  - 400: ErrValidation: No roles queried
  - 404: ErrNotFound: None of the queried roles exist
*/
func (handler *Handler) hasRole(writer http.ResponseWriter, request *http.Request) {
	held, err := handler.service.HasAnyRole(request.Context(),
		requestutil.Param(request, "userID"), queryList(request, FieldRoles))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, checkResult{Result: held})
}

func (handler *Handler) hasPermission(writer http.ResponseWriter, request *http.Request) {
	granted, err := handler.service.HasAnyPermission(request.Context(),
		requestutil.Param(request, "userID"), queryList(request, FieldPermissions))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, checkResult{Result: granted})
}

// queryList collects the repeated key parameter, skipping blanks.
func queryList(request *http.Request, key string) []string {
	var values []string
	for _, value := range request.URL.Query()[key] {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}
