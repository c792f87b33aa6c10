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

// Package failover routes user operations to whichever of two stores is
// healthy, preferring one of them, and mirrors writes to the other.
package failover

import (
	"context"
	"fmt"
	"time"

	"syncStore/internal/store"
	"syncStore/pkg/log"
	"syncStore/pkg/metrics"

	"go.uber.org/zap"
)

// DefaultProbeTimeout bounds a single health probe.
const DefaultProbeTimeout = 2 * time.Second

// Prober answers "is this store usable right now". Results are never cached.
type Prober struct {
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeLogger sets the logger for probe failures.
func WithProbeLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) { p.logger = l }
}

// WithProbeMetrics records every probe outcome.
func WithProbeMetrics(m *metrics.Metrics) ProberOption {
	return func(p *Prober) { p.metrics = m }
}

// NewProber creates a Prober. A non-positive timeout uses DefaultProbeTimeout.
func NewProber(timeout time.Duration, opts ...ProberOption) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	p := &Prober{timeout: timeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(log.Component("prober"))
	return p
}

// Timeout returns the per-probe bound.
func (p *Prober) Timeout() time.Duration { return p.timeout }

// Probe reports whether s answered a connectivity check within the timeout.
// Failures are logged and counted, never returned.
func (p *Prober) Probe(ctx context.Context, s store.Store) bool {
	err := p.Check(ctx, s)
	healthy := err == nil
	if !healthy {
		p.logger.Warn("store health check failed",
			log.Store(s.Name()),
			log.Duration("timeout", p.timeout),
			log.Err(err))
	}
	p.metrics.RecordProbe(s.Name(), healthy)
	return healthy
}

// Check runs one bounded CheckHealth and returns its error. An adapter that
// ignores its context still cannot hold the caller past the timeout.
func (p *Prober) Check(ctx context.Context, s store.Store) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("health check panicked: %v", r)
			}
		}()
		done <- s.CheckHealth(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
