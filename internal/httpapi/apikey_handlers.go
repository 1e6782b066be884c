package httpapi

import (
	"net/http"
	"time"

	"idurar.org/internal/audit"
	"idurar.org/internal/auth"
)

type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Permissions []string   `json:"permissions"`
	Expires     *time.Time `json:"expires"`
}

const secretNotice = "API key generated successfully. Please save the secret key as it won't be shown again."

func (a *API) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	issued, err := a.deps.Keys.Generate(r.Context(), auth.GenerateRequest{
		Name:        req.Name,
		Type:        req.Type,
		Permissions: req.Permissions,
		Expires:     req.Expires,
		CreatedBy:   principal(r),
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "apikey.create", map[string]any{
		"apiKeyId":    issued.ID,
		"type":        issued.Type,
		"permissions": issued.Permissions,
	})
	writeSuccess(w, issued, secretNotice)
}

func (a *API) readAPIKey(w http.ResponseWriter, r *http.Request) {
	k, err := a.deps.Keys.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, k, "API key found")
}

func (a *API) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	keys, pagination, err := a.deps.Keys.List(r.Context(), page)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeList(w, keys, pagination, "Successfully found all API keys")
}

func (a *API) regenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	issued, err := a.deps.Keys.Regenerate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "apikey.regenerate", map[string]any{"apiKeyId": issued.ID})
	writeSuccess(w, issued, "API key regenerated successfully. Please save the new secret key as it won't be shown again.")
}

func (a *API) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	k, err := a.deps.Keys.Revoke(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "apikey.revoke", map[string]any{"apiKeyId": k.ID})
	writeSuccess(w, k, "API key revoked successfully")
}
