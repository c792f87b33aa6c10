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

// Package mysql implements store.Store on MySQL through database/sql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"syncStore/internal/model"
	"syncStore/internal/store"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// erDupEntry is MySQL's ER_DUP_ENTRY.
const erDupEntry = 1062

// email is compared byte-for-byte, like the other adapters and the
// natural-key sets built during reconciliation.
const createTableSQL = "CREATE TABLE IF NOT EXISTS " + store.TableName + ` (
	id BIGINT NOT NULL AUTO_INCREMENT,
	name VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL COLLATE utf8mb4_bin,
	PRIMARY KEY (id),
	UNIQUE KEY uk_users_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Store is a MySQL-backed store.Store.
type Store struct {
	name   string
	db     *sql.DB
	logger *zap.Logger

	schemaMu    sync.Mutex
	schemaReady bool
}

var _ store.Store = (*Store)(nil)

// Open prepares a connection pool without dialing, so the process can start
// while MySQL is down. The schema is created on the first healthy probe.
func Open(opts store.Options, logger *zap.Logger) (*Store, error) {
	cfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	opts.ApplyPool(db)

	return New(opts.Name, db, logger), nil
}

// New wraps an existing pool.
func New(name string, db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		name:   name,
		db:     db,
		logger: logger.With(zap.String("store", name)),
	}
}

// Name implements store.Store.
func (s *Store) Name() string { return s.name }

// EnsureSchema creates the users table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaReady {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%s: create table: %w", s.name, err)
	}
	s.schemaReady = true
	s.logger.Info("schema ready", zap.String("table", store.TableName))
	return nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, u *model.User) (*model.User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+store.TableName+" (name, email) VALUES (?, ?)", u.Name, u.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: insert %q: %w", s.name, u.Email, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%s: last insert id: %w", s.name, err)
	}
	return &model.User{ID: id, Name: u.Name, Email: u.Email}, nil
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email FROM "+store.TableName+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", s.name, err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.name, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: list: %w", s.name, err)
	}
	return users, nil
}

// GetByID implements store.Store.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u := &model.User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email FROM "+store.TableName+" WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: get %d: %w", s.name, id, classify(err))
	}
	return u, nil
}

// GetByEmail implements store.Store.
func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email FROM "+store.TableName+" WHERE email = ?", email).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: get %q: %w", s.name, email, classify(err))
	}
	return u, nil
}

// DeleteByID implements store.Store.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+store.TableName+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%s: delete %d: %w", s.name, id, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", s.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: delete %d: %w", s.name, id, store.ErrNotFound)
	}
	return nil
}

// CheckHealth checks out a pooled connection and pings it. A store that comes
// back up gets its schema created here.
func (s *Store) CheckHealth(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return s.EnsureSchema(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the store error kinds.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == erDupEntry {
		return fmt.Errorf("%w: %s", store.ErrUniqueViolation, me.Message)
	}
	return err
}
