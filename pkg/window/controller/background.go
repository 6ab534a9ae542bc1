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

package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/window/partition"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
)

// trackedHandle is a repeating task handle the controller cancels on shutdown. Cancelling it also stops
// tracking it.
type trackedHandle struct {
	c *Controller
	h scheduler.Handle
}

func (t *trackedHandle) Cancel() {
	t.h.Cancel()
	t.c.timersLock.Lock()
	delete(t.c.timers, t)
	t.c.timersLock.Unlock()
}

// task wraps background work. The wrapped task is a no-op once the final marker has been seen. Otherwise
// it waits for the window lock and runs work, unless the task is cancelled while waiting, in which case it
// returns without running work. Errors from work are reported to the adapter.
func (c *Controller) task(name string, work partition.Work) scheduler.Task {
	return func(ctx context.Context) {
		if !c.background.Enter() {
			return
		}
		defer c.background.Leave()
		if err := c.LockContext(ctx); err != nil {
			c.log.Debugw("Background task interrupted while waiting for the window lock", zap.String("task", name))
			return
		}
		defer c.Unlock()
		if ctx.Err() != nil {
			return
		}
		err := work(ctx)
		backgroundTasks.WithLabelValues(c.name, name).Inc()
		if err != nil {
			backgroundErrors.WithLabelValues(c.name, name).Inc()
			c.log.Errorw("Background task failed", zap.String("task", name), zap.Error(err))
			c.adapter.BackgroundError(fmt.Errorf("window %s: background task %s: %w", c.name, name, err))
		}
	}
}

// ScheduleOnce runs work once after delay as a background task. It returns nil once the final marker has
// been seen.
func (c *Controller) ScheduleOnce(name string, work partition.Work, delay time.Duration) scheduler.Handle {
	c.timersLock.Lock()
	defer c.timersLock.Unlock()
	if c.background.Sealed() {
		return nil
	}
	return c.adapter.Scheduler().Once(c.task(name, work), delay)
}

// ScheduleRepeating runs work after delay and then every period as a background task. It returns nil once
// the final marker has been seen.
func (c *Controller) ScheduleRepeating(name string, work partition.Work, delay, period time.Duration) scheduler.Handle {
	c.timersLock.Lock()
	defer c.timersLock.Unlock()
	if c.background.Sealed() {
		return nil
	}
	th := &trackedHandle{c: c, h: c.adapter.Scheduler().Repeating(c.task(name, work), delay, period)}
	c.timers[th] = struct{}{}
	return th
}

// CancelAllBackgroundTasks cancels every repeating task, refuses any further background work and waits for
// the tasks already running or waiting for the lock. It must not be called with the window lock held.
func (c *Controller) CancelAllBackgroundTasks(ctx context.Context) error {
	c.timersLock.Lock()
	c.background.Seal()
	timers := c.timers
	c.timers = make(map[*trackedHandle]struct{})
	c.timersLock.Unlock()
	for th := range timers {
		th.h.Cancel()
	}
	c.log.Infow("Cancelled background tasks, waiting for running tasks", zap.Int("cancelled", len(timers)), zap.Int("running", c.background.InFlight()))
	return c.background.Wait(ctx)
}

// FinalMarkSeen reports whether background work has been shut down by the final marker.
func (c *Controller) FinalMarkSeen() bool {
	return c.background.Sealed()
}

// BackgroundTasks returns the number of scheduled repeating tasks.
func (c *Controller) BackgroundTasks() int {
	c.timersLock.Lock()
	defer c.timersLock.Unlock()
	return len(c.timers)
}
