package httpapi

import (
	"net/http"

	"idurar.org/internal/audit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Sessions are not configured")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	session, err := a.deps.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"adminId":   session.Admin.ID,
		"expiresAt": session.ExpiresAt,
	})
	writeSuccess(w, session, "Successfully login user")
}

type createAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	RoleID   string `json:"roleId"`
}

func (a *API) createAdmin(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Sessions are not configured")
		return
	}
	var req createAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	admin, err := a.deps.Sessions.Register(r.Context(), req.Email, req.Password, req.Name, req.RoleID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.create", map[string]any{"adminId": admin.ID, "roleId": admin.Role})
	writeSuccess(w, admin, "Admin created successfully")
}
