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

// Package open builds store.Store adapters from configuration.
package open

import (
	"fmt"

	"syncStore/internal/store"
	"syncStore/internal/store/memory"
	"syncStore/internal/store/mysql"
	"syncStore/internal/store/postgres"
	"syncStore/pkg/config"

	"go.uber.org/zap"
)

// secondaryIDBase offsets ids of an in-memory secondary so the two stores
// visibly disagree on ids, as two real databases would.
const secondaryIDBase = 1_000_000

// Open creates the adapter for one configured store. SQL adapters do not
// dial here; an unreachable database surfaces on the first probe.
func Open(cfg config.StoreConfig, idBase int64, logger *zap.Logger) (store.Store, error) {
	opts := store.Options{
		Name:            cfg.Name,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	switch cfg.Driver {
	case config.DriverMySQL:
		return mysql.Open(opts, logger)
	case config.DriverPostgres:
		return postgres.Open(opts, logger)
	case config.DriverMemory:
		return memory.New(cfg.Name, idBase), nil
	default:
		return nil, fmt.Errorf("store %q: unsupported driver %q", cfg.Name, cfg.Driver)
	}
}

// Pair opens the preferred and secondary stores. If the secondary fails to
// open, the preferred one is closed again.
func Pair(cfg config.StoresConfig, logger *zap.Logger) (preferred, secondary store.Store, err error) {
	preferred, err = Open(cfg.Preferred, 0, logger)
	if err != nil {
		return nil, nil, err
	}
	secondary, err = Open(cfg.Secondary, secondaryIDBase, logger)
	if err != nil {
		_ = preferred.Close()
		return nil, nil, err
	}
	return preferred, secondary, nil
}
