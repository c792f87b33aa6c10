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

// Package model holds the single entity type kept in sync across both stores.
package model

// User is a record persisted in both stores.
//
// ID is a store-local surrogate key: two stores may assign different ids to
// the same logical user, so ids are never compared across stores. Email is the
// natural key used to match equivalent records.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NaturalKey returns the business-unique key used to match records across stores.
func (u *User) NaturalKey() string {
	return u.Email
}

// Clone returns a copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Detached returns a copy of u without its surrogate id, ready to be created
// in another store.
func (u *User) Detached() *User {
	return &User{Name: u.Name, Email: u.Email}
}
