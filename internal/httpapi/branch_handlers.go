package httpapi

import (
	"net/http"

	"idurar.org/internal/audit"
	"idurar.org/internal/branch"
)

type branchRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Manager   string `json:"manager"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	IsDefault bool   `json:"isDefault"`
}

func (a *API) createBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	b, err := a.deps.Branches.Create(r.Context(), branch.Branch{
		Name:     req.Name,
		Address:  req.Address,
		Manager:  req.Manager,
		Phone:    req.Phone,
		Email:    req.Email,
		Currency: req.Currency,
		Status:   req.Status,
	}, req.IsDefault)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "branch.create", map[string]any{"branchId": b.ID, "isDefault": b.IsDefault})
	writeSuccess(w, b, "Branch created successfully")
}

func (a *API) readBranch(w http.ResponseWriter, r *http.Request) {
	b, err := a.deps.Branches.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, b, "Branch found")
}

func (a *API) updateBranch(w http.ResponseWriter, r *http.Request) {
	var patch branch.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, r, err)
		return
	}
	b, err := a.deps.Branches.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "branch.update", map[string]any{"branchId": b.ID, "isDefault": b.IsDefault})
	writeSuccess(w, b, "Branch updated successfully")
}

func (a *API) deleteBranch(w http.ResponseWriter, r *http.Request) {
	b, err := a.deps.Branches.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "branch.delete", map[string]any{"branchId": b.ID})
	writeSuccess(w, b, "Branch deleted successfully")
}

func (a *API) listBranches(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	items, pagination, err := a.deps.Branches.List(r.Context(), page)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	msg := "Successfully found all documents"
	if len(items) == 0 {
		msg = "Collection is Empty"
	}
	writeList(w, items, pagination, msg)
}

func (a *API) defaultBranch(w http.ResponseWriter, r *http.Request) {
	b, ok, err := a.deps.Branches.Default(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if !ok {
		writeSuccess(w, nil, "No default branch")
		return
	}
	writeSuccess(w, b, "Default branch found")
}
