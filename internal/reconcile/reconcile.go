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

// Package reconcile copies records missing from one store into the other
// until both hold the same set of natural keys.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"syncStore/internal/failover"
	"syncStore/internal/model"
	"syncStore/internal/store"
	"syncStore/pkg/log"
	"syncStore/pkg/metrics"

	"go.uber.org/zap"
)

// Report describes one reconciliation run.
type Report struct {
	Aborted           bool          `json:"aborted"`
	Skipped           bool          `json:"skipped"`
	CopiedToPreferred int           `json:"copied_to_preferred"`
	CopiedToSecondary int           `json:"copied_to_secondary"`
	Failed            int           `json:"failed"`
	Duration          time.Duration `json:"duration_ns"`
	Err               error         `json:"-"`
}

// Copied returns the total number of records copied in either direction.
func (r Report) Copied() int {
	return r.CopiedToPreferred + r.CopiedToSecondary
}

// Succeeded reports whether the run completed with no failed copy.
func (r Report) Succeeded() bool {
	return !r.Aborted && !r.Skipped && r.Err == nil && r.Failed == 0
}

// Outcome is the metrics label for the run.
func (r Report) Outcome() string {
	switch {
	case r.Skipped:
		return metrics.OutcomeSkipped
	case r.Aborted:
		return metrics.OutcomeAborted
	case r.Err != nil:
		return metrics.OutcomeError
	case r.Failed > 0:
		return metrics.OutcomePartial
	default:
		return metrics.OutcomeOK
	}
}

// Reconciler performs additive two-way copies between the stores. It never
// deletes and never overwrites an existing record.
type Reconciler struct {
	preferred store.Store
	secondary store.Store
	prober    *failover.Prober
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithMetrics records runs and copies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a Reconciler over the same two stores the router uses.
func New(preferred, secondary store.Store, prober *failover.Prober, opts ...Option) *Reconciler {
	if prober == nil {
		prober = failover.NewProber(failover.DefaultProbeTimeout)
	}
	r := &Reconciler{
		preferred: preferred,
		secondary: secondary,
		prober:    prober,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(log.Component("reconciler"))
	return r
}

// Metrics returns the recorder used for runs, possibly nil.
func (r *Reconciler) Metrics() *metrics.Metrics { return r.metrics }

// SyncAll runs one reconciliation pass. It aborts without touching either
// store unless both are healthy. A failed copy is logged and counted; the
// remaining copies still run.
func (r *Reconciler) SyncAll(ctx context.Context) (rep Report) {
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		r.metrics.RecordReconcileRun(rep.Outcome(), rep.Duration)
		r.logResult(rep)
	}()

	prefUp := r.prober.Probe(ctx, r.preferred)
	secUp := r.prober.Probe(ctx, r.secondary)
	if !prefUp || !secUp {
		rep.Aborted = true
		return rep
	}

	a, err := r.preferred.ListAll(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("snapshot %s: %w", r.preferred.Name(), err)
		return rep
	}
	b, err := r.secondary.ListAll(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("snapshot %s: %w", r.secondary.Name(), err)
		return rep
	}

	aKeys, bKeys := naturalKeys(a), naturalKeys(b)

	var failed int
	rep.CopiedToSecondary, failed, err = r.copyMissing(ctx, a, bKeys, r.secondary)
	rep.Failed += failed
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.CopiedToPreferred, failed, err = r.copyMissing(ctx, b, aKeys, r.preferred)
	rep.Failed += failed
	rep.Err = err
	return rep
}

// copyMissing creates in target a detached copy of every record in src whose
// natural key is not in present. It stops early only when ctx is done.
func (r *Reconciler) copyMissing(ctx context.Context, src []*model.User, present map[string]struct{}, target store.Store) (copied, failed int, err error) {
	for _, u := range src {
		if _, ok := present[u.NaturalKey()]; ok {
			continue
		}
		if ctx.Err() != nil {
			return copied, failed, fmt.Errorf("copy to %s interrupted: %w", target.Name(), ctx.Err())
		}

		_, cerr := target.Create(ctx, u.Detached())
		r.metrics.RecordReconcileCopy(target.Name(), cerr)
		if cerr != nil {
			failed++
			r.logger.Warn("copy failed",
				log.Target(target.Name()),
				log.Email(u.Email),
				log.Err(cerr))
			continue
		}
		copied++
		r.logger.Info("copied", log.Target(target.Name()), log.Email(u.Email))
	}
	return copied, failed, nil
}

func (r *Reconciler) logResult(rep Report) {
	stats := log.SyncReport(rep.CopiedToPreferred, rep.CopiedToSecondary, rep.Failed, rep.Duration)
	switch {
	case rep.Aborted:
		r.logger.Warn("reconciliation aborted, a store is unhealthy")
	case rep.Err != nil:
		r.logger.Warn("reconciliation failed", stats, log.Err(rep.Err))
	case rep.Copied() > 0 || rep.Failed > 0:
		r.logger.Info("reconciliation finished", stats)
	default:
		r.logger.Debug("reconciliation finished, stores in sync", stats)
	}
}

func naturalKeys(users []*model.User) map[string]struct{} {
	keys := make(map[string]struct{}, len(users))
	for _, u := range users {
		keys[u.NaturalKey()] = struct{}{}
	}
	return keys
}
