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

package partition

import (
	"bytes"
	"context"
	"time"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
)

// PeriodicTimer is the timer of a time driven policy. It fires fn every period while its partition is
// active. Reactivation after a pause does not compound the delay: the next firing is computed from the
// last time the timer fired.
//
// PeriodicTimer is owned by a single partition and, like the partition, is only used with the window
// lock held. Its last fired time is part of the policy state.
type PeriodicTimer struct {
	name      string
	period    time.Duration
	fn        func(p *Partition) error
	lastFired time.Time
	handle    scheduler.Handle
}

// NewPeriodicTimer returns an unarmed timer.
func NewPeriodicTimer(name string, period time.Duration, fn func(p *Partition) error) *PeriodicTimer {
	return &PeriodicTimer{
		name:   name,
		period: period,
		fn:     fn,
	}
}

// Period returns the timer period.
func (t *PeriodicTimer) Period() time.Duration {
	return t.period
}

// LastFired returns the time the timer last fired, or the time it was first armed.
func (t *PeriodicTimer) LastFired() time.Time {
	return t.lastFired
}

// Delay returns how long after now the timer should next fire: 0 when a full period has already elapsed
// since it last fired, otherwise the rest of the period.
func (t *PeriodicTimer) Delay(now time.Time) time.Duration {
	if t.lastFired.IsZero() {
		return t.period
	}
	elapsed := now.Sub(t.lastFired)
	if elapsed >= t.period {
		return 0
	}
	return t.period - elapsed
}

// Armed reports whether the timer is scheduled.
func (t *PeriodicTimer) Armed() bool {
	return t.handle != nil
}

// Activate arms the timer, re-arming it if it is already armed.
func (t *PeriodicTimer) Activate(p *Partition) {
	now := p.host.Now()
	if t.lastFired.IsZero() {
		t.lastFired = now
	}
	t.Deactivate()
	t.handle = p.host.ScheduleRepeating(t.name, func(ctx context.Context) error {
		if p.Evicted() {
			return nil
		}
		t.lastFired = p.host.Now()
		return t.fn(p)
	}, t.Delay(now), t.period)
}

// Deactivate cancels the timer. A firing blocked on the window lock is interrupted and does not run.
func (t *PeriodicTimer) Deactivate() {
	if t.handle != nil {
		t.handle.Cancel()
		t.handle = nil
	}
}

// MarshalBinary encodes the last fired time.
func (t *PeriodicTimer) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	var nanos int64
	if !t.lastFired.IsZero() {
		nanos = t.lastFired.UnixNano()
	}
	if err := checkpoint.NewEncoder(buf).WriteInt64(nanos); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores the last fired time.
func (t *PeriodicTimer) UnmarshalBinary(data []byte) error {
	nanos, err := checkpoint.NewDecoder(bytes.NewReader(data)).ReadInt64()
	if err != nil {
		return err
	}
	if nanos == 0 {
		t.lastFired = time.Time{}
	} else {
		t.lastFired = time.Unix(0, nanos)
	}
	return nil
}
