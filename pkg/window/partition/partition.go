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

// Package partition implements a single window partition: its slot buffer, the insertion, punctuation and
// eviction protocol, and the pluggable Policy that implements tuple level eviction and triggering.
//
// A partition is not safe for concurrent use. Every method except the accessors must be called with the
// owning window's lock held, which is also what serializes the events it dispatches.
package partition

import (
	"context"
	"errors"
	"time"

	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
	"github.com/numaproj/numawindow/pkg/window/slot"
)

// ErrEvicted is returned when inserting into a partition that has been evicted.
var ErrEvicted = errors.New("partition has been evicted")

// Work is background work scheduled on behalf of a partition. It runs with the window lock held.
type Work func(ctx context.Context) error

// Host is the window owning a partition.
type Host interface {
	// Dispatch delivers an event to the window listener. The host sets Event.Window.
	Dispatch(e window.Event) error
	// TuplesEvicted is told how many slots a partition evicted, before the Eviction event is dispatched.
	TuplesEvicted(n int)
	// ScheduleOnce and ScheduleRepeating schedule background work. They return nil once the window has
	// seen the final marker.
	ScheduleOnce(name string, work Work, delay time.Duration) scheduler.Handle
	ScheduleRepeating(name string, work Work, delay, period time.Duration) scheduler.Handle
	// Now returns the current time of the window's clock.
	Now() time.Time
}

// Partition is an independent buffer of a window.
type Partition struct {
	key    string
	host   Host
	policy Policy
	// slots are ordered oldest to newest
	slots   []*slot.Slot
	active  bool
	evicted bool
}

// New returns an empty, inactive partition.
func New(key string, host Host, policy Policy) *Partition {
	if policy == nil {
		policy = RetainAll{}
	}
	return &Partition{
		key:    key,
		host:   host,
		policy: policy,
	}
}

// Key returns the partition key.
func (p *Partition) Key() string {
	return p.key
}

// Len returns the number of slots, released ones included.
func (p *Partition) Len() int {
	return len(p.slots)
}

// Empty reports whether the partition holds no slots.
func (p *Partition) Empty() bool {
	return len(p.slots) == 0
}

// View returns a view over all slots.
func (p *Partition) View() slot.View {
	return slot.NewView(p.slots)
}

// Policy returns the tuple level policy of the partition.
func (p *Partition) Policy() Policy {
	return p.policy
}

// Host returns the window owning the partition.
func (p *Partition) Host() Host {
	return p.host
}

// Active reports whether the partition is activated.
func (p *Partition) Active() bool {
	return p.active
}

// Evicted reports whether the partition has been evicted. An evicted partition never dispatches an event.
func (p *Partition) Evicted() bool {
	return p.evicted
}

// Insert appends t and raises an Insertion event for it. The slot is appended before any policy hook or
// listener runs, so the buffer reflects the insertion even when they fail.
func (p *Partition) Insert(t *tuple.Tuple) error {
	if p.evicted {
		return ErrEvicted
	}
	s := slot.New(t)
	p.slots = append(p.slots, s)
	if err := p.policy.BeforeInsert(p, t); err != nil {
		return err
	}
	if err := p.dispatch(window.Insertion, slot.NewView([]*slot.Slot{s})); err != nil {
		return err
	}
	return p.policy.AfterInsert(p, t)
}

// Mark delivers punctuation to the partition. A final marker raises Final, a window marker raises
// WindowMarker and is then handed to the policy.
func (p *Partition) Mark(punct tuple.Punctuation) error {
	switch punct {
	case tuple.FinalMarker:
		return p.dispatch(window.Final, p.View())
	case tuple.WindowMarker:
		if err := p.dispatch(window.WindowMarker, p.View()); err != nil {
			return err
		}
		return p.policy.Mark(p, punct)
	default:
		return nil
	}
}

// EvictOldest removes up to n of the oldest slots and raises an Eviction event for them. Nothing is raised
// when there is nothing to evict.
func (p *Partition) EvictOldest(n int) error {
	if n > len(p.slots) {
		n = len(p.slots)
	}
	if n <= 0 {
		return nil
	}
	return p.evict(n)
}

// EvictAll removes every slot and raises an Eviction event, even for an empty partition.
func (p *Partition) EvictAll() error {
	return p.evict(len(p.slots))
}

func (p *Partition) evict(n int) error {
	evicted := p.slots[:n:n]
	p.slots = append([]*slot.Slot(nil), p.slots[n:]...)
	p.host.TuplesEvicted(n)
	return p.dispatch(window.Eviction, slot.NewView(evicted))
}

// Trigger raises a Trigger event over the whole partition.
func (p *Partition) Trigger() error {
	return p.dispatch(window.Trigger, p.View())
}

// InitialFull raises an InitialFull event over the whole partition.
func (p *Partition) InitialFull() error {
	return p.dispatch(window.InitialFull, p.View())
}

// Evict deactivates the partition and raises a PartitionEviction event over its remaining tuples. The
// partition is marked evicted even when the listener fails, and never dispatches again.
func (p *Partition) Evict() error {
	if p.evicted {
		return nil
	}
	defer func() {
		p.evicted = true
		p.slots = nil
	}()
	p.Deactivate()
	return p.dispatch(window.PartitionEviction, p.View())
}

// Activate starts the policy, e.g. arms its periodic timer. Activating an active partition re-arms it.
func (p *Partition) Activate() error {
	if p.evicted {
		return nil
	}
	if err := p.policy.Activate(p); err != nil {
		return err
	}
	p.active = true
	return nil
}

// Deactivate stops the policy. It is a no-op for an inactive partition.
func (p *Partition) Deactivate() {
	if !p.active {
		return
	}
	p.policy.Deactivate(p)
	p.active = false
}

// Drain flushes any pending policy work.
func (p *Partition) Drain() error {
	return p.policy.Drain(p)
}

func (p *Partition) dispatch(typ window.EventType, view slot.View) error {
	if p.evicted {
		return nil
	}
	return p.host.Dispatch(window.Event{
		Type:         typ,
		PartitionKey: p.key,
		Tuples:       view,
	})
}
