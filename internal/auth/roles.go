package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"idurar.org/internal/domain"
	"idurar.org/internal/ids"
)

// RoleManager manages roles and their assignment to admins.
type RoleManager struct {
	roles  RoleStore
	admins AdminStore
	now    func() time.Time
}

// NewRoleManager returns a RoleManager over store.
func NewRoleManager(store Store) (*RoleManager, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	return &RoleManager{
		roles:  store,
		admins: store,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create adds a role. A non-removed role with the same name fails with domain.ErrInvalidOperation.
func (m *RoleManager) Create(ctx context.Context, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", domain.ErrInvalidInput)
	}
	now := m.now()
	return m.roles.CreateRole(ctx, Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: dedupeStrings(permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (m *RoleManager) Get(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: Role not found", domain.ErrNotFound)
	}
	return m.roles.GetRole(ctx, id)
}

func (m *RoleManager) Update(ctx context.Context, id string, upd RoleUpdate) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: Role not found", domain.ErrNotFound)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", domain.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if upd.Permissions != nil {
		perms := dedupeStrings(*upd.Permissions)
		upd.Permissions = &perms
	}
	return m.roles.UpdateRole(ctx, id, upd, m.now())
}

// Delete soft-deletes a role. It fails with domain.ErrInvalidOperation while any admin references it.
func (m *RoleManager) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: Role not found", domain.ErrNotFound)
	}
	return m.roles.DeleteRole(ctx, id)
}

func (m *RoleManager) List(ctx context.Context) ([]Role, error) {
	return m.roles.ListRoles(ctx)
}

// Assign points an admin at a role.
func (m *RoleManager) Assign(ctx context.Context, roleID, adminID string) (Admin, error) {
	roleID = strings.TrimSpace(roleID)
	adminID = strings.TrimSpace(adminID)
	if roleID == "" || adminID == "" {
		return Admin{}, fmt.Errorf("%w: roleId and userId are required", domain.ErrInvalidInput)
	}
	role, err := m.roles.GetRole(ctx, roleID)
	if err != nil {
		return Admin{}, err
	}
	if role.Removed {
		return Admin{}, fmt.Errorf("%w: Role not found", domain.ErrNotFound)
	}
	return m.admins.SetAdminRole(ctx, adminID, role.ID)
}

func dedupeStrings(values []string) []string {
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
