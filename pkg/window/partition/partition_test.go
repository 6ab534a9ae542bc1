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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
)

type fakeHandle struct {
	cancelled bool
}

func (h *fakeHandle) Cancel() {
	h.cancelled = true
}

type scheduled struct {
	name   string
	work   Work
	delay  time.Duration
	period time.Duration
	handle *fakeHandle
}

type fakeHost struct {
	now       time.Time
	events    []window.Event
	evicted   int
	scheduled []*scheduled
	// failOn makes Dispatch fail for the given event type
	failOn map[window.EventType]bool
	sealed bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{now: time.Unix(1000, 0), failOn: map[window.EventType]bool{}}
}

func (h *fakeHost) Dispatch(e window.Event) error {
	h.events = append(h.events, e)
	if h.failOn[e.Type] {
		return errors.New("listener failed")
	}
	return nil
}

func (h *fakeHost) TuplesEvicted(n int) {
	h.evicted += n
}

func (h *fakeHost) ScheduleOnce(name string, work Work, delay time.Duration) scheduler.Handle {
	return h.ScheduleRepeating(name, work, delay, 0)
}

func (h *fakeHost) ScheduleRepeating(name string, work Work, delay, period time.Duration) scheduler.Handle {
	if h.sealed {
		return nil
	}
	s := &scheduled{name: name, work: work, delay: delay, period: period, handle: &fakeHandle{}}
	h.scheduled = append(h.scheduled, s)
	return s.handle
}

func (h *fakeHost) Now() time.Time {
	return h.now
}

func (h *fakeHost) types() []window.EventType {
	var out []window.EventType
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func tup(payload string) *tuple.Tuple {
	return tuple.New(time.UnixMilli(1), []byte(payload))
}

func payloads(t *testing.T, e window.Event) []string {
	t.Helper()
	var out []string
	for _, tp := range e.Tuples.Tuples() {
		out = append(out, string(tp.Payload))
	}
	return out
}

func TestPartition_Insert(t *testing.T) {
	h := newFakeHost()
	p := New("k", h, nil)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, p.Insert(tup(s)))
	}
	assert.Equal(t, 3, p.Len())
	require.Len(t, h.events, 3)
	for i, s := range []string{"a", "b", "c"} {
		assert.Equal(t, window.Insertion, h.events[i].Type)
		assert.Equal(t, "k", h.events[i].PartitionKey)
		assert.Equal(t, []string{s}, payloads(t, h.events[i]))
	}
	var all []string
	for _, tp := range p.View().Tuples() {
		all = append(all, string(tp.Payload))
	}
	assert.Equal(t, []string{"a", "b", "c"}, all)
}

func TestPartition_InsertListenerError(t *testing.T) {
	h := newFakeHost()
	h.failOn[window.Insertion] = true
	p := New("k", h, nil)
	assert.Error(t, p.Insert(tup("a")))
	// the buffer reflects the insertion even though the listener failed
	assert.Equal(t, 1, p.Len())
}

func TestPartition_Mark(t *testing.T) {
	h := newFakeHost()
	p := New("k", h, nil)
	require.NoError(t, p.Insert(tup("a")))
	require.NoError(t, p.Mark(tuple.WindowMarker))
	require.NoError(t, p.Mark(tuple.FinalMarker))
	assert.Equal(t, []window.EventType{window.Insertion, window.WindowMarker, window.Final}, h.types())
	assert.Equal(t, []string{"a"}, payloads(t, h.events[2]))
}

func TestPartition_EvictOldest(t *testing.T) {
	h := newFakeHost()
	p := New("k", h, nil)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, p.Insert(tup(s)))
	}
	h.events = nil
	require.NoError(t, p.EvictOldest(2))
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 2, h.evicted)
	require.Len(t, h.events, 1)
	assert.Equal(t, window.Eviction, h.events[0].Type)
	assert.Equal(t, []string{"a", "b"}, payloads(t, h.events[0]))

	// nothing to evict raises nothing
	require.NoError(t, p.EvictOldest(0))
	assert.Len(t, h.events, 1)

	require.NoError(t, p.EvictOldest(10))
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 3, h.evicted)

	// a tumbling eviction is raised even when empty
	require.NoError(t, p.EvictAll())
	assert.Len(t, h.events, 3)
}

func TestPartition_EvictAccountingBeforeDispatch(t *testing.T) {
	h := newFakeHost()
	h.failOn[window.Eviction] = true
	p := New("k", h, nil)
	require.NoError(t, p.Insert(tup("a")))
	assert.Error(t, p.EvictAll())
	assert.Equal(t, 1, h.evicted)
	assert.Equal(t, 0, p.Len())
}

func TestPartition_Evict(t *testing.T) {
	h := newFakeHost()
	h.failOn[window.PartitionEviction] = true
	p := New("k", h, nil)
	require.NoError(t, p.Insert(tup("a")))
	require.NoError(t, p.Activate())
	assert.True(t, p.Active())

	assert.Error(t, p.Evict())
	assert.True(t, p.Evicted())
	assert.False(t, p.Active())
	last := h.events[len(h.events)-1]
	assert.Equal(t, window.PartitionEviction, last.Type)
	assert.Equal(t, []string{"a"}, payloads(t, last))

	// no event is ever dispatched once evicted
	n := len(h.events)
	assert.NoError(t, p.Evict())
	assert.NoError(t, p.Mark(tuple.FinalMarker))
	assert.NoError(t, p.Trigger())
	assert.NoError(t, p.InitialFull())
	assert.NoError(t, p.EvictAll())
	assert.ErrorIs(t, p.Insert(tup("b")), ErrEvicted)
	assert.Len(t, h.events, n)
}

func TestPartition_TriggerAndInitialFull(t *testing.T) {
	h := newFakeHost()
	p := New("k", h, nil)
	require.NoError(t, p.Insert(tup("a")))
	require.NoError(t, p.Trigger())
	require.NoError(t, p.InitialFull())
	assert.Equal(t, []window.EventType{window.Insertion, window.Trigger, window.InitialFull}, h.types())
}

// countTumbling evicts all tuples once it holds size tuples.
type countTumbling struct {
	RetainAll
	size int
}

func (c *countTumbling) AfterInsert(p *Partition, _ *tuple.Tuple) error {
	if p.Len() >= c.size {
		return p.EvictAll()
	}
	return nil
}

func TestPartition_Policy(t *testing.T) {
	h := newFakeHost()
	p := New("k", h, &countTumbling{size: 2})
	require.NoError(t, p.Insert(tup("a")))
	require.NoError(t, p.Insert(tup("b")))
	assert.Equal(t, []window.EventType{window.Insertion, window.Insertion, window.Eviction}, h.types())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 2, h.evicted)
}

// timeTumbling evicts all tuples every period.
type timeTumbling struct {
	RetainAll
	timer *PeriodicTimer
}

func newTimeTumbling(period time.Duration) *timeTumbling {
	return &timeTumbling{timer: NewPeriodicTimer("time-tumbling", period, func(p *Partition) error {
		return p.EvictAll()
	})}
}

func (tt *timeTumbling) Activate(p *Partition) error {
	tt.timer.Activate(p)
	return nil
}

func (tt *timeTumbling) Deactivate(*Partition) {
	tt.timer.Deactivate()
}

func (tt *timeTumbling) MarshalState() ([]byte, error) {
	return tt.timer.MarshalBinary()
}

func (tt *timeTumbling) UnmarshalState(data []byte) error {
	return tt.timer.UnmarshalBinary(data)
}

func TestPeriodicTimer_Delay(t *testing.T) {
	timer := NewPeriodicTimer("t", 10*time.Second, nil)
	now := time.Unix(100, 0)
	assert.Equal(t, 10*time.Second, timer.Delay(now))
	timer.lastFired = now
	assert.Equal(t, 10*time.Second, timer.Delay(now))
	assert.Equal(t, 6*time.Second, timer.Delay(now.Add(4*time.Second)))
	assert.Equal(t, time.Duration(0), timer.Delay(now.Add(10*time.Second)))
	assert.Equal(t, time.Duration(0), timer.Delay(now.Add(time.Hour)))
}

func TestPeriodicTimer_Activate(t *testing.T) {
	h := newFakeHost()
	policy := newTimeTumbling(10 * time.Second)
	p := New("k", h, policy)
	require.NoError(t, p.Activate())
	require.Len(t, h.scheduled, 1)
	assert.Equal(t, 10*time.Second, h.scheduled[0].delay)
	assert.Equal(t, 10*time.Second, h.scheduled[0].period)
	assert.True(t, h.now.Equal(policy.timer.LastFired()))

	// a firing evicts and records the firing time
	require.NoError(t, p.Insert(tup("a")))
	h.now = h.now.Add(10 * time.Second)
	require.NoError(t, h.scheduled[0].work(context.Background()))
	assert.Equal(t, 0, p.Len())
	assert.True(t, h.now.Equal(policy.timer.LastFired()))

	// reactivation after a pause does not compound the delay
	p.Deactivate()
	assert.True(t, h.scheduled[0].handle.cancelled)
	assert.False(t, policy.timer.Armed())
	h.now = h.now.Add(3 * time.Second)
	require.NoError(t, p.Activate())
	require.Len(t, h.scheduled, 2)
	assert.Equal(t, 7*time.Second, h.scheduled[1].delay)

	// re-activating an active partition re-arms the timer
	h.now = h.now.Add(30 * time.Second)
	require.NoError(t, p.Activate())
	assert.True(t, h.scheduled[1].handle.cancelled)
	assert.Equal(t, time.Duration(0), h.scheduled[2].delay)

	// firing after eviction does nothing
	require.NoError(t, p.Evict())
	assert.True(t, h.scheduled[2].handle.cancelled)
	n := len(h.events)
	require.NoError(t, h.scheduled[2].work(context.Background()))
	assert.Len(t, h.events, n)
}

func TestPeriodicTimer_SealedHost(t *testing.T) {
	h := newFakeHost()
	h.sealed = true
	policy := newTimeTumbling(time.Second)
	p := New("k", h, policy)
	require.NoError(t, p.Activate())
	assert.False(t, policy.timer.Armed())
	p.Deactivate()
}

func TestPartition_Codec(t *testing.T) {
	h := newFakeHost()
	policy := newTimeTumbling(time.Second)
	p := New("key-1", h, policy)
	require.NoError(t, p.Activate())
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, p.Insert(tup(s)))
	}
	it := p.View().Iterator()
	require.True(t, it.HasNext())
	_, err := it.Next()
	require.NoError(t, err)
	require.NoError(t, it.Remove())

	buf := new(bytes.Buffer)
	require.NoError(t, p.Encode(checkpoint.NewEncoder(buf)))

	restoredPolicy := newTimeTumbling(time.Second)
	q, err := Decode(checkpoint.NewDecoder(bytes.NewReader(buf.Bytes())), func(key string) (*Partition, error) {
		return New(key, h, restoredPolicy), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "key-1", q.Key())
	assert.Equal(t, 3, q.Len())
	var got []string
	for _, tp := range q.View().Tuples() {
		got = append(got, string(tp.Payload))
	}
	assert.Equal(t, []string{"b", "c"}, got)
	assert.Equal(t, policy.timer.LastFired().UnixNano(), restoredPolicy.timer.LastFired().UnixNano())

	// truncated records fail
	for _, n := range []int{3, 12, buf.Len() - 1} {
		_, err := Decode(checkpoint.NewDecoder(bytes.NewReader(buf.Bytes()[:n])), func(key string) (*Partition, error) {
			return New(key, h, nil), nil
		})
		assert.Error(t, err, "length %d", n)
	}
}

func TestRetainAllFactory(t *testing.T) {
	policy, err := RetainAllFactory().NewPolicy("k", nil)
	require.NoError(t, err)
	assert.Equal(t, RetainAll{}, policy)
}
