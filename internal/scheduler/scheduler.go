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

// Package scheduler runs reconciliation passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"syncStore/internal/reconcile"
	"syncStore/pkg/log"
	"syncStore/pkg/metrics"
	"syncStore/pkg/reliability"

	"go.uber.org/zap"
)

// DefaultInterval is the period between reconciliation passes.
const DefaultInterval = 2 * time.Second

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// Syncer runs one reconciliation pass.
type Syncer interface {
	SyncAll(ctx context.Context) reconcile.Report
}

// Scheduler invokes a Syncer every interval. At most one pass runs at a time;
// a tick that finds a pass still running is skipped, not queued.
type Scheduler struct {
	syncer     Syncer
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger
	metrics    *metrics.Metrics

	busy    atomic.Bool
	skipped atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	passes sync.WaitGroup
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics counts skipped ticks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithRunOnStart runs one pass as soon as the scheduler starts.
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) { s.runOnStart = enabled }
}

// New creates a stopped scheduler. A non-positive interval uses DefaultInterval.
func New(syncer Syncer, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.Component("scheduler"))
	return s
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Skipped returns how many passes were skipped because one was running.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

// Start launches the ticking goroutine. The loop ends when ctx is done or
// Stop is called. A stopped scheduler cannot be started again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started",
		log.Duration("interval", s.interval),
		zap.Bool("run_on_start", s.runOnStart))
	return nil
}

// Stop cancels the loop and any running pass, and waits for both to exit.
// It is safe to call more than once, and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.passes.Wait()
}

// Trigger runs one pass now, through the same busy guard as the ticker.
// The returned report has Skipped set when a pass was already running.
func (s *Scheduler) Trigger(ctx context.Context) reconcile.Report {
	if !s.acquire() {
		return s.skip()
	}
	defer s.busy.Store(false)
	return s.runPass(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer reliability.RecoverPanic("scheduler-loop")

	if s.runOnStart {
		s.dispatch(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch starts a pass in the background unless one is running.
func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.acquire() {
		s.skip()
		return
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer s.busy.Store(false)
		s.runPass(ctx)
	}()
}

func (s *Scheduler) acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *Scheduler) skip() reconcile.Report {
	s.skipped.Add(1)
	s.metrics.RecordReconcileRun(metrics.OutcomeSkipped, 0)
	s.logger.Debug("reconciliation still running, tick skipped")
	return reconcile.Report{Skipped: true}
}

func (s *Scheduler) runPass(ctx context.Context) (rep reconcile.Report) {
	err := reliability.Protect("reconcile-pass", func() error {
		rep = s.syncer.SyncAll(ctx)
		return nil
	})
	if err != nil {
		rep.Err = err
	}
	return rep
}
