package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"idurar.org/internal/domain"
)

var (
	errAdminNotFound  = fmt.Errorf("%w: User not found", domain.ErrNotFound)
	errRoleMissing    = fmt.Errorf("%w: Role not found", domain.ErrNotFound)
	errAPIKeyNotFound = fmt.Errorf("%w: API key not found", domain.ErrNotFound)

	// ErrDuplicateRole is returned when a non-removed role already uses the name.
	ErrDuplicateRole = fmt.Errorf("%w: A role with this name already exists", domain.ErrInvalidOperation)
	// ErrRoleInUse is returned when deleting a role still referenced by an admin.
	ErrRoleInUse = fmt.Errorf("%w: This role is assigned to one or more users and cannot be deleted", domain.ErrInvalidOperation)
	// ErrDuplicateEmail is returned when an admin email is taken.
	ErrDuplicateEmail = fmt.Errorf("%w: an admin with this email already exists", domain.ErrInvalidOperation)
	// ErrLastOwner is returned when the only remaining owner would lose the owner role.
	ErrLastOwner = fmt.Errorf("%w: The last owner account cannot be assigned another role", domain.ErrInvalidOperation)
	// ErrDuplicateKey is returned on the (improbable) collision of generated keys.
	ErrDuplicateKey = fmt.Errorf("%w: API key already exists", domain.ErrInvalidOperation)
)

// InMemory is a process-local Store guarded by one mutex.
type InMemory struct {
	mu     sync.RWMutex
	admins map[string]Admin
	roles  map[string]Role
	keys   map[string]APIKey
	byKey  map[string]string
	now    func() time.Time
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		admins: make(map[string]Admin),
		roles:  make(map[string]Role),
		keys:   make(map[string]APIKey),
		byKey:  make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) CreateAdmin(_ context.Context, a Admin) (Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.admins {
		if !existing.Removed && existing.Email == a.Email {
			return Admin{}, ErrDuplicateEmail
		}
	}
	if a.Role != "" && a.Role != OwnerRole {
		if r, ok := s.roles[a.Role]; !ok || r.Removed {
			return Admin{}, errRoleMissing
		}
	}
	s.admins[a.ID] = a
	return a, nil
}

func (s *InMemory) GetAdmin(_ context.Context, id string) (Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[id]
	if !ok || a.Removed {
		return Admin{}, errAdminNotFound
	}
	return a, nil
}

func (s *InMemory) FindAdminByEmail(_ context.Context, email string) (Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.admins {
		if !a.Removed && a.Email == email {
			return a, nil
		}
	}
	return Admin{}, errAdminNotFound
}

func (s *InMemory) SetAdminRole(_ context.Context, adminID, role string) (Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role != OwnerRole {
		if r, ok := s.roles[role]; !ok || r.Removed {
			return Admin{}, errRoleMissing
		}
	}
	a, ok := s.admins[adminID]
	if !ok || a.Removed {
		return Admin{}, errAdminNotFound
	}
	if a.IsOwner() && role != OwnerRole && s.ownersLocked() == 1 {
		return Admin{}, ErrLastOwner
	}
	a.Role = role
	s.admins[adminID] = a
	return a, nil
}

func (s *InMemory) CreateRole(_ context.Context, r Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleNameTakenLocked(r.Name, "") {
		return Role{}, ErrDuplicateRole
	}
	r.Permissions = cloneStrings(r.Permissions)
	s.roles[r.ID] = r
	return cloneRole(r), nil
}

func (s *InMemory) GetRole(_ context.Context, id string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok || r.Removed {
		return Role{}, errRoleMissing
	}
	return cloneRole(r), nil
}

func (s *InMemory) UpdateRole(_ context.Context, id string, upd RoleUpdate, at time.Time) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok || r.Removed {
		return Role{}, errRoleMissing
	}
	if upd.Name != nil {
		if s.roleNameTakenLocked(*upd.Name, id) {
			return Role{}, ErrDuplicateRole
		}
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Permissions != nil {
		r.Permissions = cloneStrings(*upd.Permissions)
	}
	r.UpdatedAt = at
	s.roles[id] = r
	return cloneRole(r), nil
}

func (s *InMemory) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok || r.Removed {
		return errRoleMissing
	}
	for _, a := range s.admins {
		if !a.Removed && a.Role == id {
			return ErrRoleInUse
		}
	}
	r.Removed = true
	s.roles[id] = r
	return nil
}

func (s *InMemory) ListRoles(_ context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		if !r.Removed {
			out = append(out, cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemory) CreateAPIKey(_ context.Context, k APIKey) (APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byKey[k.Key]; taken {
		return APIKey{}, ErrDuplicateKey
	}
	k.Permissions = cloneStrings(k.Permissions)
	s.keys[k.ID] = k
	s.byKey[k.Key] = k.ID
	return cloneKey(k), nil
}

func (s *InMemory) GetAPIKey(_ context.Context, id string) (APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok || k.Removed {
		return APIKey{}, errAPIKeyNotFound
	}
	return cloneKey(k), nil
}

func (s *InMemory) FindAPIKeyByKey(_ context.Context, key string) (APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return APIKey{}, errAPIKeyNotFound
	}
	return cloneKey(s.keys[id]), nil
}

func (s *InMemory) ListAPIKeys(_ context.Context, offset, limit int) ([]APIKey, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		if !k.Removed {
			all = append(all, k)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	count := len(all)
	if offset >= count {
		return []APIKey{}, count, nil
	}
	end := offset + limit
	if end > count {
		end = count
	}
	out := make([]APIKey, 0, end-offset)
	for _, k := range all[offset:end] {
		out = append(out, cloneKey(k))
	}
	return out, count, nil
}

func (s *InMemory) ReplaceAPIKeyCredentials(_ context.Context, id, key, secretHash string) (APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.Removed {
		return APIKey{}, errAPIKeyNotFound
	}
	if other, taken := s.byKey[key]; taken && other != id {
		return APIKey{}, ErrDuplicateKey
	}
	delete(s.byKey, k.Key)
	k.Key = key
	k.SecretHash = secretHash
	k.UpdatedAt = s.now()
	s.keys[id] = k
	s.byKey[key] = id
	return cloneKey(k), nil
}

func (s *InMemory) SetAPIKeyStatus(_ context.Context, id, status string) (APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.Removed {
		return APIKey{}, errAPIKeyNotFound
	}
	k.Status = status
	k.UpdatedAt = s.now()
	s.keys[id] = k
	return cloneKey(k), nil
}

func (s *InMemory) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return errAPIKeyNotFound
	}
	t := at
	k.LastUsed = &t
	s.keys[id] = k
	return nil
}

func (s *InMemory) ownersLocked() int {
	n := 0
	for _, a := range s.admins {
		if !a.Removed && a.IsOwner() {
			n++
		}
	}
	return n
}

func (s *InMemory) roleNameTakenLocked(name, exceptID string) bool {
	for id, r := range s.roles {
		if id != exceptID && !r.Removed && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRole(r Role) Role {
	r.Permissions = cloneStrings(r.Permissions)
	return r
}

func cloneKey(k APIKey) APIKey {
	k.Permissions = cloneStrings(k.Permissions)
	if k.Expires != nil {
		e := *k.Expires
		k.Expires = &e
	}
	if k.LastUsed != nil {
		l := *k.LastUsed
		k.LastUsed = &l
	}
	return k
}
