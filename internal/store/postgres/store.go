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

// Package postgres implements store.Store on PostgreSQL using GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"syncStore/internal/model"
	"syncStore/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// userRow is the persisted layout of a user.
type userRow struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Name  string `gorm:"size:255;not null"`
	Email string `gorm:"size:255;not null;uniqueIndex:uk_users_email"`
}

func (userRow) TableName() string { return store.TableName }

func (r *userRow) toModel() *model.User {
	return &model.User{ID: r.ID, Name: r.Name, Email: r.Email}
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	name   string
	db     *gorm.DB
	logger *zap.Logger

	schemaMu    sync.Mutex
	schemaReady bool
}

var _ store.Store = (*Store)(nil)

// Open creates the GORM handle without pinging so the process can start
// while PostgreSQL is down. AutoMigrate runs on the first healthy probe.
func Open(opts store.Options, zl *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		TranslateError:       true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get postgres pool: %w", err)
	}
	opts.ApplyPool(sqlDB)

	return New(opts.Name, db, zl), nil
}

// New wraps an existing GORM handle.
func New(name string, db *gorm.DB, zl *zap.Logger) *Store {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Store{
		name:   name,
		db:     db,
		logger: zl.With(zap.String("store", name)),
	}
}

// Name implements store.Store.
func (s *Store) Name() string { return s.name }

// Migrate creates the users table and its unique index if needed.
func (s *Store) Migrate(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaReady {
		return nil
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}); err != nil {
		return fmt.Errorf("%s: migrate: %w", s.name, err)
	}
	s.schemaReady = true
	s.logger.Info("schema ready", zap.String("table", store.TableName))
	return nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, u *model.User) (*model.User, error) {
	row := &userRow{Name: u.Name, Email: u.Email}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("%s: insert %q: %w", s.name, u.Email, classify(err))
	}
	return row.toModel(), nil
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) ([]*model.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%s: list: %w", s.name, err)
	}
	users := make([]*model.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toModel())
	}
	return users, nil
}

// GetByID implements store.Store.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, fmt.Errorf("%s: get %d: %w", s.name, id, classify(err))
	}
	return row.toModel(), nil
}

// GetByEmail implements store.Store.
func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return nil, fmt.Errorf("%s: get %q: %w", s.name, email, classify(err))
	}
	return row.toModel(), nil
}

// DeleteByID implements store.Store.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&userRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("%s: delete %d: %w", s.name, id, classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: delete %d: %w", s.name, id, store.ErrNotFound)
	}
	return nil
}

// CheckHealth pings a pooled connection and migrates a store that came back.
func (s *Store) CheckHealth(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	return s.Migrate(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify maps GORM and pgx errors onto the store error kinds.
func classify(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}
