/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scheduler runs the background work of windows, e.g. partition age sweeps and the periodic
// timers of time based partitions. Tasks are one shot or repeat at a fixed rate and are cancellable through
// the Handle returned when they are scheduled. Time is read from a clock.Clock so tests can drive the
// scheduler with a mock clock.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/shared/logging"
)

// Task is a unit of background work. Its context is cancelled when the task's handle is cancelled or the
// scheduler is closed.
type Task func(ctx context.Context)

// Handle cancels a scheduled task. Cancel does not wait for a running task to return.
type Handle interface {
	Cancel()
}

// Scheduler schedules background tasks.
type Scheduler interface {
	// Once runs task once after delay.
	Once(task Task, delay time.Duration) Handle
	// Repeating runs task after delay and then every period. Runs of the same task never overlap.
	Repeating(task Task, delay, period time.Duration) Handle
	// Clock returns the time source of the scheduler.
	Clock() clock.Clock
}

type handle struct {
	cancel context.CancelFunc
}

func (h *handle) Cancel() {
	h.cancel()
}

type noopHandle struct{}

func (noopHandle) Cancel() {}

// ClockScheduler is a Scheduler starting one goroutine per scheduled task.
type ClockScheduler struct {
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// mu guards closed and wg.Add against Close
	mu     sync.Mutex
	closed bool
	log    *zap.SugaredLogger
}

var _ Scheduler = (*ClockScheduler)(nil)

// New returns a scheduler whose tasks are cancelled when ctx is done or Close is called.
func New(ctx context.Context, opts ...Option) *ClockScheduler {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	cctx, cancel := context.WithCancel(ctx)
	return &ClockScheduler{
		clock:  o.clock,
		ctx:    cctx,
		cancel: cancel,
		log:    logging.FromContext(ctx).Named("scheduler"),
	}
}

func (s *ClockScheduler) Clock() clock.Clock {
	return s.clock
}

// start runs fn in a tracked goroutine unless the scheduler is closed.
func (s *ClockScheduler) start(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *ClockScheduler) Once(task Task, delay time.Duration) Handle {
	ctx, cancel := context.WithCancel(s.ctx)
	var timer *clock.Timer
	if delay > 0 {
		timer = s.clock.Timer(delay)
	}
	started := s.start(func() {
		defer cancel()
		if timer != nil {
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		task(ctx)
	})
	if !started {
		cancel()
		if timer != nil {
			timer.Stop()
		}
		return noopHandle{}
	}
	return &handle{cancel: cancel}
}

func (s *ClockScheduler) Repeating(task Task, delay, period time.Duration) Handle {
	if period <= 0 {
		s.log.Warnw("Repeating task with a non positive period scheduled once", zap.Duration("period", period))
		return s.Once(task, delay)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	var timer *clock.Timer
	if delay > 0 {
		timer = s.clock.Timer(delay)
	}
	started := s.start(func() {
		defer cancel()
		if timer != nil {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		// the ticker is armed before the first run so its phase does not depend on how long the run takes
		ticker := s.clock.Ticker(period)
		defer ticker.Stop()
		task(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				task(ctx)
			}
		}
	})
	if !started {
		cancel()
		if timer != nil {
			timer.Stop()
		}
		return noopHandle{}
	}
	return &handle{cancel: cancel}
}

// Close cancels every task and waits for running tasks to return. Tasks scheduled after Close never run.
func (s *ClockScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
