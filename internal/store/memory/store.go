// Copyright 2025 The axfor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides an in-process Store backed by a B-tree.
//
// It behaves like the SQL adapters (auto-increment ids, unique email) and can
// be switched unhealthy or made to fail selected writes, which makes it the
// double used by failover and reconciliation tests as well as a dev backend.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"syncStore/internal/model"
	"syncStore/internal/store"

	"github.com/google/btree"
)

// ErrUnavailable is returned by every operation while the store is marked down.
var ErrUnavailable = errors.New("memory store unavailable")

// CreateHook runs before each Create; a non-nil error fails the write.
type CreateHook func(u *model.User) error

// Store is an in-memory store.Store.
type Store struct {
	name string

	mu      sync.RWMutex
	tree    *btree.BTreeG[*model.User] // ordered by id
	byEmail map[string]int64
	nextID  int64
	hook    CreateHook

	healthy atomic.Bool
	writes  atomic.Int64
	probes  atomic.Int64
}

var _ store.Store = (*Store)(nil)

// New creates an empty, healthy store. idBase offsets generated ids so two
// memory stores never hand out the same id sequence.
func New(name string, idBase int64) *Store {
	s := &Store{
		name: name,
		tree: btree.NewG[*model.User](32, func(a, b *model.User) bool {
			return a.ID < b.ID
		}),
		byEmail: make(map[string]int64),
		nextID:  idBase,
	}
	s.healthy.Store(true)
	return s
}

// Name implements store.Store.
func (s *Store) Name() string { return s.name }

// SetHealthy marks the store up or down.
func (s *Store) SetHealthy(healthy bool) { s.healthy.Store(healthy) }

// SetCreateHook installs a hook consulted before every Create.
func (s *Store) SetCreateHook(h CreateHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// Writes returns the number of successful mutations.
func (s *Store) Writes() int64 { return s.writes.Load() }

// Probes returns the number of CheckHealth calls.
func (s *Store) Probes() int64 { return s.probes.Load() }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Emails returns the natural keys currently stored, in id order.
func (s *Store) Emails() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.tree.Len())
	s.tree.Ascend(func(u *model.User) bool {
		out = append(out, u.Email)
		return true
	})
	return out
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, u *model.User) (*model.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hook != nil {
		if err := s.hook(u); err != nil {
			return nil, err
		}
	}
	if _, exists := s.byEmail[u.Email]; exists {
		return nil, fmt.Errorf("%s: email %q: %w", s.name, u.Email, store.ErrUniqueViolation)
	}

	s.nextID++
	rec := &model.User{ID: s.nextID, Name: u.Name, Email: u.Email}
	s.tree.ReplaceOrInsert(rec)
	s.byEmail[rec.Email] = rec.ID
	s.writes.Add(1)

	return rec.Clone(), nil
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) ([]*model.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*model.User, 0, s.tree.Len())
	s.tree.Ascend(func(u *model.User) bool {
		users = append(users, u.Clone())
		return true
	})
	return users, nil
}

// GetByID implements store.Store.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.tree.Get(&model.User{ID: id})
	if !ok {
		return nil, fmt.Errorf("%s: id %d: %w", s.name, id, store.ErrNotFound)
	}
	return u.Clone(), nil
}

// GetByEmail implements store.Store.
func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%s: email %q: %w", s.name, email, store.ErrNotFound)
	}
	u, _ := s.tree.Get(&model.User{ID: id})
	return u.Clone(), nil
}

// DeleteByID implements store.Store.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.tree.Delete(&model.User{ID: id})
	if !ok {
		return fmt.Errorf("%s: id %d: %w", s.name, id, store.ErrNotFound)
	}
	delete(s.byEmail, u.Email)
	s.writes.Add(1)
	return nil
}

// CheckHealth implements store.Store.
func (s *Store) CheckHealth(ctx context.Context) error {
	s.probes.Add(1)
	return s.check(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.healthy.Load() {
		return fmt.Errorf("%s: %w", s.name, ErrUnavailable)
	}
	return nil
}
