package httpapi

import (
	"net/http"

	"idurar.org/internal/audit"
	"idurar.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Permissions *[]string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"roleId"`
	UserID string `json:"userId"`
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	role, err := a.deps.Roles.Create(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.create", map[string]any{"roleId": role.ID, "permissions": role.Permissions})
	writeSuccess(w, role, "Role created successfully")
}

func (a *API) readRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.deps.Roles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, role, "Role found")
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	role, err := a.deps.Roles.Update(r.Context(), r.PathValue("id"), auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.update", map[string]any{"roleId": role.ID, "permissions": role.Permissions})
	writeSuccess(w, role, "Role updated successfully")
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.deps.Roles.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.delete", map[string]any{"roleId": id})
	writeSuccess(w, nil, "Role deleted successfully")
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.deps.Roles.List(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, roles, "Successfully found all roles")
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, auth.Catalogue(), "Successfully found all permissions")
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	admin, err := a.deps.Roles.Assign(r.Context(), req.RoleID, req.UserID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.assign", map[string]any{"roleId": req.RoleID, "adminId": admin.ID})
	writeSuccess(w, admin, "Role assigned successfully")
}
