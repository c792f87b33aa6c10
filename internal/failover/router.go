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

package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"syncStore/internal/model"
	"syncStore/internal/store"
	"syncStore/pkg/log"
	"syncStore/pkg/metrics"

	"go.uber.org/zap"
)

// ErrNoHealthyStore is returned when neither store passes its probe.
var ErrNoHealthyStore = errors.New("failover: no healthy store")

// Operation names used in logs and metrics.
const (
	OpSave       = "save"
	OpReadAll    = "read_all"
	OpFindByID   = "find_by_id"
	OpDeleteByID = "delete_by_id"
)

const noStore = "none"

// Router sends each operation to the preferred store when it is healthy and
// to the secondary otherwise. Writes are mirrored best-effort to the other
// store. Every call probes afresh; no health state survives between calls.
type Router struct {
	preferred store.Store
	secondary store.Store
	prober    *Prober
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics records routed operations and mirror outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a Router over two distinct stores.
func NewRouter(preferred, secondary store.Store, prober *Prober, opts ...Option) *Router {
	if prober == nil {
		prober = NewProber(DefaultProbeTimeout)
	}
	r := &Router{
		preferred: preferred,
		secondary: secondary,
		prober:    prober,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(log.Component("router"))
	return r
}

// Preferred returns the store that wins whenever it is healthy.
func (r *Router) Preferred() store.Store { return r.preferred }

// Secondary returns the fallback store.
func (r *Router) Secondary() store.Store { return r.secondary }

// Prober returns the prober used for routing decisions.
func (r *Router) Prober() *Prober { return r.prober }

// Save writes u to the preferred store, falling back to the secondary, and
// returns the record as stored by whichever store took the write. When the
// preferred store took it, a copy is mirrored to the secondary if healthy.
func (r *Router) Save(ctx context.Context, u *model.User) (saved *model.User, err error) {
	if u == nil {
		return nil, errors.New("failover: nil user")
	}

	start := time.Now()
	served := noStore
	defer func() { r.metrics.RecordRoute(OpSave, served, err, time.Since(start)) }()

	primary, mirror := r.route(ctx)
	if primary == nil {
		r.logger.Error("save rejected, no healthy store", log.Email(u.Email))
		return nil, ErrNoHealthyStore
	}
	served = primary.Name()

	// the caller going away must not abort a write that already started
	wctx := context.WithoutCancel(ctx)

	saved, err = primary.Create(wctx, u.Detached())
	if err != nil {
		r.logger.Error("save failed", log.Store(served), log.Email(u.Email), log.Err(err))
		return nil, fmt.Errorf("save %q: %w", u.Email, err)
	}
	r.logger.Info("saved",
		log.Store(served),
		log.Email(saved.Email),
		log.UserID(saved.ID))

	if mirror != nil {
		r.mirrorCreate(wctx, mirror, saved)
	}
	return saved, nil
}

// ReadAll returns every record of the first healthy store, or an empty list
// when neither store is healthy. An error is returned only when the chosen
// store fails to list.
func (r *Router) ReadAll(ctx context.Context) (users []*model.User, err error) {
	start := time.Now()
	served := noStore
	defer func() { r.metrics.RecordRoute(OpReadAll, served, err, time.Since(start)) }()

	s := r.pick(ctx)
	if s == nil {
		r.logger.Warn("no healthy store, returning empty list")
		return []*model.User{}, nil
	}
	served = s.Name()

	users, err = s.ListAll(ctx)
	if err != nil {
		r.logger.Error("list failed", log.Store(served), log.Err(err))
		return nil, fmt.Errorf("read all: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// FindByID looks id up in the first healthy store. The id is only meaningful
// within that store.
func (r *Router) FindByID(ctx context.Context, id int64) (u *model.User, err error) {
	start := time.Now()
	served := noStore
	defer func() { r.metrics.RecordRoute(OpFindByID, served, err, time.Since(start)) }()

	s := r.pick(ctx)
	if s == nil {
		return nil, ErrNoHealthyStore
	}
	served = s.Name()

	u, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find %d: %w", id, err)
	}
	return u, nil
}

// DeleteByID removes id from the first healthy store, then removes the record
// with the same email from the other store if it is healthy.
func (r *Router) DeleteByID(ctx context.Context, id int64) (err error) {
	start := time.Now()
	served := noStore
	defer func() { r.metrics.RecordRoute(OpDeleteByID, served, err, time.Since(start)) }()

	primary, mirror := r.route(ctx)
	if primary == nil {
		r.logger.Error("delete rejected, no healthy store", log.UserID(id))
		return ErrNoHealthyStore
	}
	served = primary.Name()

	wctx := context.WithoutCancel(ctx)

	// the natural key is needed to find the twin record on the other store
	existing, err := primary.GetByID(wctx, id)
	if err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	if err = primary.DeleteByID(wctx, id); err != nil {
		r.logger.Error("delete failed", log.Store(served), log.UserID(id), log.Err(err))
		return fmt.Errorf("delete %d: %w", id, err)
	}
	r.logger.Info("deleted", log.Store(served), log.Email(existing.Email), log.UserID(id))

	if mirror != nil {
		r.mirrorDelete(wctx, mirror, existing.Email)
	}
	return nil
}

// route picks the store that serves a write and the store to mirror it to.
// The mirror target is probed only when the preferred store serves the write;
// a write that landed on the secondary is left for reconciliation.
func (r *Router) route(ctx context.Context) (primary, mirror store.Store) {
	if r.prober.Probe(ctx, r.preferred) {
		if r.prober.Probe(ctx, r.secondary) {
			return r.preferred, r.secondary
		}
		return r.preferred, nil
	}
	if r.prober.Probe(ctx, r.secondary) {
		r.logger.Info("preferred store unhealthy, using secondary",
			log.Store(r.secondary.Name()))
		return r.secondary, nil
	}
	return nil, nil
}

// pick returns the first healthy store in preference order, or nil.
func (r *Router) pick(ctx context.Context) store.Store {
	if r.prober.Probe(ctx, r.preferred) {
		return r.preferred
	}
	if r.prober.Probe(ctx, r.secondary) {
		return r.secondary
	}
	return nil
}

func (r *Router) mirrorCreate(ctx context.Context, target store.Store, u *model.User) {
	_, err := target.Create(ctx, u.Detached())
	switch {
	case err == nil:
		r.metrics.RecordMirror(OpSave, metrics.OutcomeOK)
		r.logger.Info("mirrored", log.Target(target.Name()), log.Email(u.Email))
	case store.IsUniqueViolation(err):
		r.metrics.RecordMirror(OpSave, metrics.OutcomeDuplicate)
		r.logger.Info("mirror skipped, record already present",
			log.Target(target.Name()), log.Email(u.Email))
	default:
		r.metrics.RecordMirror(OpSave, metrics.OutcomeFailed)
		r.logger.Warn("mirror write failed",
			log.Target(target.Name()), log.Email(u.Email), log.Err(err))
	}
}

func (r *Router) mirrorDelete(ctx context.Context, target store.Store, email string) {
	twin, err := target.GetByEmail(ctx, email)
	if err == nil {
		err = target.DeleteByID(ctx, twin.ID)
	}
	switch {
	case store.IsNotFound(err):
		r.metrics.RecordMirror(OpDeleteByID, metrics.OutcomeAbsent)
		r.logger.Info("mirror delete skipped, record absent", log.Target(target.Name()), log.Email(email))
	case err != nil:
		r.metrics.RecordMirror(OpDeleteByID, metrics.OutcomeFailed)
		r.logger.Warn("mirror delete failed", log.Target(target.Name()), log.Email(email), log.Err(err))
	default:
		r.metrics.RecordMirror(OpDeleteByID, metrics.OutcomeOK)
		r.logger.Info("mirrored delete", log.Target(target.Name()), log.Email(email), log.UserID(twin.ID))
	}
}
