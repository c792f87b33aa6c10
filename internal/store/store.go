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

package store

import (
	"context"
	"errors"

	"syncStore/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the requested id.
	ErrNotFound = errors.New("store: record not found")

	// ErrUniqueViolation is returned when a write collides with an existing
	// record on the natural key. Adapters translate their driver-specific
	// duplicate-key errors into this value.
	ErrUniqueViolation = errors.New("store: unique constraint violation")
)

// Store is the CRUD capability every backing store must implement
type Store interface {
	// Name identifies the store in logs and metrics.
	Name() string

	// Create persists u and returns the stored record with its store-local id.
	// The id carried by u is ignored.
	Create(ctx context.Context, u *model.User) (*model.User, error)

	// ListAll returns a full snapshot of the store.
	ListAll(ctx context.Context) ([]*model.User, error)

	// GetByID returns ErrNotFound when the id is absent.
	GetByID(ctx context.Context, id int64) (*model.User, error)

	// GetByEmail looks a record up by its natural key through the unique
	// index. Returns ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// DeleteByID returns ErrNotFound when the id is absent.
	DeleteByID(ctx context.Context, id int64) error

	// CheckHealth performs a connectivity check; nil means healthy.
	CheckHealth(ctx context.Context) error

	Close() error
}

// IsUniqueViolation reports whether err is a natural-key collision.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FindByEmail scans a snapshot for the record with the given natural key.
func FindByEmail(users []*model.User, email string) (*model.User, bool) {
	for _, u := range users {
		if u.Email == email {
			return u, true
		}
	}
	return nil, false
}
