package auth

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/configstore"
)

// UserStore persists Users via ConfigStore's users/by-username buckets.
// It exists to resolve a username to its password hash and role names at
// the AuthGate edge, plus seed the bootstrap admin.
type UserStore struct {
	cfg *configstore.ConfigStore
}

// NewUserStore wraps cfg for user lookups.
func NewUserStore(cfg *configstore.ConfigStore) *UserStore {
	return &UserStore{cfg: cfg}
}

// Create persists a new user with a hashed password, failing with
// apperr.ErrUserAlreadyExists if the username is taken.
func (s *UserStore) Create(username, password string, roles []string) (User, error) {
	if _, err := s.cfg.GetUserIDByUsername(username); err == nil {
		return User{}, apperr.ErrUserAlreadyExists
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u := User{ID: uuid.NewString(), Username: username, PasswordHash: hash, Roles: roles}
	if err := s.cfg.PutUser(u.ID, u.Username, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetByUsername resolves username through the by-username index.
func (s *UserStore) GetByUsername(username string) (User, error) {
	id, err := s.cfg.GetUserIDByUsername(username)
	if err != nil {
		return User{}, apperr.ErrUserNotFound
	}
	raw, err := s.cfg.GetUser(string(id))
	if err != nil {
		return User{}, apperr.ErrUserNotFound
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, fmt.Errorf("%w: %v", apperr.ErrSerialization, err)
	}
	return u, nil
}

// Exists reports whether username is already registered.
func (s *UserStore) Exists(username string) bool {
	_, err := s.cfg.GetUserIDByUsername(username)
	return err == nil
}

// RoleStore persists Roles keyed by name.
type RoleStore struct {
	cfg *configstore.ConfigStore
}

// NewRoleStore wraps cfg for role lookups.
func NewRoleStore(cfg *configstore.ConfigStore) *RoleStore {
	return &RoleStore{cfg: cfg}
}

// Create persists a new role, failing with apperr.ErrRoleAlreadyExists if
// the name is taken.
func (s *RoleStore) Create(role Role) error {
	if _, err := s.cfg.GetRole(role.Name); err == nil {
		return apperr.ErrRoleAlreadyExists
	}
	return s.cfg.PutRole(role.Name, role)
}

// Get fetches a role by name.
func (s *RoleStore) Get(name string) (Role, error) {
	raw, err := s.cfg.GetRole(name)
	if err != nil {
		return Role{}, apperr.ErrRoleNotFound
	}
	var r Role
	if err := json.Unmarshal(raw, &r); err != nil {
		return Role{}, fmt.Errorf("%w: %v", apperr.ErrSerialization, err)
	}
	return r, nil
}

// Delete removes a role, refusing system roles and rejecting unknown
// names.
func (s *RoleStore) Delete(name string) error {
	r, err := s.Get(name)
	if err != nil {
		return err
	}
	if r.System {
		return apperr.ErrCannotDeleteSystemRole
	}
	return s.cfg.DeleteRole(name)
}

// PermissionsFor unions the permissions granted by every named role,
// silently skipping names that no longer resolve.
func (s *RoleStore) PermissionsFor(roleNames []string) map[Permission]struct{} {
	out := make(map[Permission]struct{})
	for _, name := range roleNames {
		r, err := s.Get(name)
		if err != nil {
			continue
		}
		for p := range r.Permissions {
			out[p] = struct{}{}
		}
	}
	return out
}

// SeedBootstrapAdmin creates the admin user and an "admin" system role
// granting every Permission, unless the user already exists. Called once
// at boot so a fresh data directory always has a usable login.
func SeedBootstrapAdmin(users *UserStore, roles *RoleStore, username, password string) error {
	if users.Exists(username) {
		return nil
	}
	adminRole := Role{
		Name: "admin",
		Permissions: map[Permission]struct{}{
			PermCacheRead:  {},
			PermCacheWrite: {},
			PermCacheAdmin: {},
			PermUserAdmin:  {},
			PermRoleAdmin:  {},
		},
		System: true,
	}
	if _, err := roles.Get(adminRole.Name); err != nil {
		if err := roles.Create(adminRole); err != nil {
			return err
		}
	}
	_, err := users.Create(username, password, []string{adminRole.Name})
	return err
}
