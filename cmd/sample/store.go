package main

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bjaus/endpoint"
)

// User is the core domain entity.
type User struct {
	ID        string
	Tenant    string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

var errUserNotFound = endpoint.Error(http.StatusNotFound, "user not found")

// userStore keeps users in memory, keyed by tenant then ID.
type userStore struct {
	mu    sync.RWMutex
	users map[string]map[string]*User
	now   func() time.Time
}

func newUserStore() *userStore {
	s := &userStore{
		users: map[string]map[string]*User{},
		now:   time.Now,
	}
	ctx := context.Background()
	_, _ = s.create(ctx, &User{Tenant: "acme", Name: "Alice", Email: "alice@acme.test", Role: "admin"})
	_, _ = s.create(ctx, &User{Tenant: "acme", Name: "Bob", Email: "bob@acme.test", Role: "member"})
	_, _ = s.create(ctx, &User{Tenant: "globex", Name: "Hank", Email: "hank@globex.test", Role: "member"})
	return s
}

func (s *userStore) list(_ context.Context, tenant, role string, limit int) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users[tenant]))
	for _, u := range s.users[tenant] {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *userStore) get(_ context.Context, tenant, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[tenant][id]
	if !ok {
		return nil, errUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) create(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users[u.Tenant] {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, endpoint.Errorf(http.StatusConflict, "email %s already registered", u.Email)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	cp := *u
	cp.ID = id.String()
	if cp.Role == "" {
		cp.Role = "member"
	}
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt

	if s.users[cp.Tenant] == nil {
		s.users[cp.Tenant] = map[string]*User{}
	}
	s.users[cp.Tenant][cp.ID] = &cp
	out := cp
	return &out, nil
}

// update applies the non-empty fields of patch to the stored user.
func (s *userStore) update(_ context.Context, patch *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[patch.Tenant][patch.ID]
	if !ok {
		return nil, errUserNotFound
	}
	if patch.Name != "" {
		u.Name = patch.Name
	}
	if patch.Email != "" {
		u.Email = patch.Email
	}
	if patch.Role != "" {
		u.Role = patch.Role
	}
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *userStore) delete(_ context.Context, tenant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[tenant][id]; !ok {
		return errUserNotFound
	}
	delete(s.users[tenant], id)
	return nil
}

func (s *userStore) hasTenant(tenant string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[tenant]
	return ok
}
