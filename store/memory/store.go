package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/tenantauth"
)

type historyEntry struct {
	hash      string
	createdAt time.Time
}

// Store implements tenantauth.CredentialStore, PasswordChanger, TenantStore and RoleStore.
type Store struct {
	mu        sync.RWMutex
	tenants   map[string]*tenantauth.Tenant
	users     map[string]*tenantauth.User
	userRoles map[string][]string
	roles     map[string]*tenantauth.Role
	history   map[string][]historyEntry
}

var (
	_ tenantauth.CredentialStore = (*Store)(nil)
	_ tenantauth.PasswordChanger = (*Store)(nil)
	_ tenantauth.TenantStore     = (*Store)(nil)
	_ tenantauth.RoleStore       = (*Store)(nil)
)

func New() *Store {
	return &Store{
		tenants:   make(map[string]*tenantauth.Tenant),
		users:     make(map[string]*tenantauth.User),
		userRoles: make(map[string][]string),
		roles:     make(map[string]*tenantauth.Role),
		history:   make(map[string][]historyEntry),
	}
}

/* ==== Seeding ==== */

// PutTenant inserts or replaces t. A code held by another tenant is ErrConflict.
func (s *Store) PutTenant(t tenantauth.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.tenants {
		if id != t.ID && strings.EqualFold(other.Code, t.Code) {
			return tenantauth.ErrConflict
		}
	}
	cp := t
	s.tenants[t.ID] = &cp
	return nil
}

// PutRole inserts or replaces r.
func (s *Store) PutRole(r tenantauth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = cloneRole(&r)
}

// PutUser inserts or replaces u and assigns roleIDs. u.Roles is ignored. Username and email
// are unique per tenant.
func (s *Store) PutUser(u tenantauth.User, roleIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identityTaken(&u) {
		return tenantauth.ErrConflict
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return tenantauth.ErrNotFound
		}
	}
	cp := u.Clone()
	cp.Roles = nil
	s.users[u.ID] = cp
	s.userRoles[u.ID] = append([]string(nil), roleIDs...)
	return nil
}

// AssignRoles replaces the roles of userID.
func (s *Store) AssignRoles(userID string, roleIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return tenantauth.ErrNotFound
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return tenantauth.ErrNotFound
		}
	}
	s.userRoles[userID] = append([]string(nil), roleIDs...)
	return nil
}

/* ==== CredentialStore ==== */

func (s *Store) FindTenantByCode(_ context.Context, code string) (*tenantauth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Code, code) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenantauth.ErrNotFound
}

func (s *Store) FindTenantByID(_ context.Context, id string) (*tenantauth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenantauth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// FindUserByTenantAndIdentifier matches username or email case-insensitively.
func (s *Store) FindUserByTenantAndIdentifier(_ context.Context, tenantID, identifier string) (*tenantauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.TenantID != tenantID {
			continue
		}
		if strings.EqualFold(u.Username, identifier) || (u.Email != "" && strings.EqualFold(u.Email, identifier)) {
			return s.materialize(u), nil
		}
	}
	return nil, tenantauth.ErrNotFound
}

func (s *Store) FindUserByID(_ context.Context, id string) (*tenantauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, tenantauth.ErrNotFound
	}
	return s.materialize(u), nil
}

// SaveUser replaces the stored user when its version equals expectedVersion. Roles are not
// written; use AssignRoles.
func (s *Store) SaveUser(_ context.Context, u *tenantauth.User, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(u, expectedVersion)
}

func (s *Store) RecentPasswordHistory(_ context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[userID]
	if limit > len(entries) {
		limit = len(entries)
	}
	out := make([]string, 0, limit)
	for _, e := range entries[:limit] {
		out = append(out, e.hash)
	}
	return out, nil
}

func (s *Store) AppendAndTrimHistory(_ context.Context, userID, hash string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHistoryLocked(userID, hash, keep)
	return nil
}

// ChangePassword appends oldHash to the history, trims it and saves u under one lock.
func (s *Store) ChangePassword(_ context.Context, u *tenantauth.User, expectedVersion int64, oldHash string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(u, expectedVersion); err != nil {
		return err
	}
	if oldHash != "" {
		s.appendHistoryLocked(u.ID, oldHash, keep)
	}
	return nil
}

// HistoryLen returns the number of stored history entries for userID.
func (s *Store) HistoryLen(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[userID])
}

/* ==== TenantStore ==== */

func (s *Store) UpdateTenantStatus(_ context.Context, tenantID string, status tenantauth.TenantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return tenantauth.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

/* ==== RoleStore ==== */

// ListRoles returns system roles and the roles of tenantID, ordered by code.
func (s *Store) ListRoles(_ context.Context, tenantID string) ([]tenantauth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenantauth.Role
	for _, r := range s.roles {
		if r.System || r.TenantID == tenantID {
			out = append(out, *cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].System != out[j].System {
			return out[i].System
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *Store) FindRole(_ context.Context, id string) (*tenantauth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, tenantauth.ErrNotFound
	}
	return cloneRole(r), nil
}

func (s *Store) CreateRole(_ context.Context, role *tenantauth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.TenantID == role.TenantID && r.Code == role.Code {
			return tenantauth.ErrConflict
		}
	}
	s.roles[role.ID] = cloneRole(role)
	return nil
}

func (s *Store) UpdateRole(_ context.Context, role *tenantauth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[role.ID]
	if !ok {
		return tenantauth.ErrNotFound
	}
	r.Name = role.Name
	r.Description = role.Description
	r.UpdatedAt = role.UpdatedAt
	return nil
}

func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return tenantauth.ErrNotFound
	}
	for _, ids := range s.userRoles {
		for _, rid := range ids {
			if rid == id {
				return tenantauth.ErrRoleInUse
			}
		}
	}
	delete(s.roles, id)
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID string, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return tenantauth.ErrNotFound
	}
	r.Permissions = append([]string(nil), permissions...)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

/* ==== internals ==== */

func (s *Store) materialize(u *tenantauth.User) *tenantauth.User {
	out := u.Clone()
	out.Roles = nil
	for _, id := range s.userRoles[u.ID] {
		if r, ok := s.roles[id]; ok {
			out.Roles = append(out.Roles, *cloneRole(r))
		}
	}
	return out
}

func (s *Store) checkVersionLocked(userID string, expected int64) error {
	stored, ok := s.users[userID]
	if !ok {
		return tenantauth.ErrNotFound
	}
	if stored.Version != expected {
		return tenantauth.ErrVersionConflict
	}
	return nil
}

func (s *Store) saveLocked(u *tenantauth.User, expectedVersion int64) error {
	if err := s.checkVersionLocked(u.ID, expectedVersion); err != nil {
		return err
	}
	if s.identityTaken(u) {
		return tenantauth.ErrConflict
	}
	cp := u.Clone()
	cp.Roles = nil
	cp.Version = expectedVersion + 1
	s.users[u.ID] = cp
	u.Version = cp.Version
	return nil
}

func (s *Store) identityTaken(u *tenantauth.User) bool {
	for id, other := range s.users {
		if id == u.ID || other.TenantID != u.TenantID {
			continue
		}
		if strings.EqualFold(other.Username, u.Username) {
			return true
		}
		if u.Email != "" && strings.EqualFold(other.Email, u.Email) {
			return true
		}
	}
	return false
}

func (s *Store) appendHistoryLocked(userID, hash string, keep int) {
	entries := append([]historyEntry{{hash: hash, createdAt: time.Now().UTC()}}, s.history[userID]...)
	if keep < 0 {
		keep = 0
	}
	if len(entries) > keep {
		entries = entries[:keep]
	}
	s.history[userID] = entries
}

func cloneRole(r *tenantauth.Role) *tenantauth.Role {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	return &cp
}
