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
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/directory"
	"github.com/numaproj/numawindow/pkg/window/partition"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testAdapter struct {
	sched *scheduler.ClockScheduler
	mock  *clock.Mock
	errs  chan error

	mu    sync.Mutex
	ready []func()
}

func newTestAdapter(t *testing.T) *testAdapter {
	t.Helper()
	mock := clock.NewMock()
	a := &testAdapter{
		sched: scheduler.New(context.Background(), scheduler.WithClock(mock)),
		mock:  mock,
		errs:  make(chan error, 16),
	}
	t.Cleanup(a.sched.Close)
	return a
}

func (a *testAdapter) Scheduler() scheduler.Scheduler {
	return a.sched
}

func (a *testAdapter) BackgroundError(err error) {
	a.errs <- err
}

func (a *testAdapter) OnAllPortsReady(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = append(a.ready, fn)
}

func (a *testAdapter) allPortsReady() {
	a.mu.Lock()
	fns := a.ready
	a.ready = nil
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type recorded struct {
	typ      window.EventType
	key      string
	payloads []string
}

// recorder records events. onEvent, if set, runs after the event has been recorded.
type recorder struct {
	mu      sync.Mutex
	events  []recorded
	onEvent func(e window.Event) error
}

func (r *recorder) HandleEvent(e window.Event) error {
	rec := recorded{typ: e.Type, key: e.PartitionKey}
	for _, t := range e.Tuples.Tuples() {
		rec.payloads = append(rec.payloads, string(t.Payload))
	}
	r.mu.Lock()
	r.events = append(r.events, rec)
	r.mu.Unlock()
	if r.onEvent != nil {
		return r.onEvent(e)
	}
	return nil
}

func (r *recorder) ofType(typ window.EventType) []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recorded
	for _, e := range r.events {
		if e.typ == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func tup(payload string, keys ...string) *tuple.Tuple {
	return tuple.New(time.UnixMilli(1), []byte(payload), keys...)
}

func newController(t *testing.T, a *testAdapter, opts ...window.Option) (*Controller, *recorder) {
	t.Helper()
	desc, err := window.NewDescriptor(opts...)
	require.NoError(t, err)
	c, err := New(context.Background(), desc, a, WithName(t.Name()))
	require.NoError(t, err)
	r := &recorder{}
	c.RegisterListener(r)
	if desc.Partitioned() {
		require.NoError(t, c.RegisterPartitioner(window.KeysPartitioner()))
	}
	return c, r
}

func tasksRun(c *Controller, task string) float64 {
	return testutil.ToFloat64(backgroundTasks.WithLabelValues(c.name, task))
}

func TestController_NotPartitioned(t *testing.T) {
	ctx := context.Background()
	c, r := newController(t, newTestAdapter(t))
	for _, s := range []string{"A", "B", "C"} {
		require.NoError(t, c.Insert(ctx, tup(s)))
	}
	inserts := r.ofType(window.Insertion)
	require.Len(t, inserts, 3)
	for i, s := range []string{"A", "B", "C"} {
		assert.Equal(t, []string{s}, inserts[i].payloads)
		assert.Equal(t, directory.FixedKey, inserts[i].key)
	}
	partitions := c.ActiveWindowPartitions()
	require.Len(t, partitions, 1)
	var order []string
	for _, tp := range partitions[0].View().Tuples() {
		order = append(order, string(tp.Payload))
	}
	assert.Equal(t, []string{"A", "B", "C"}, order)
	assert.Equal(t, int64(3), c.TupleCount())
}

func TestController_UsageErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, newTestAdapter(t))
	_, err := c.Partitions()
	assert.ErrorIs(t, err, window.ErrNotPartitioned)
	assert.ErrorIs(t, c.EvictPartition(ctx, "x"), window.ErrNotPartitioned)
	assert.ErrorIs(t, c.RegisterPartitioner(window.KeysPartitioner()), window.ErrNotPartitioned)

	desc, err := window.NewDescriptor(window.WithPartitioned(true))
	require.NoError(t, err)
	p, err := New(ctx, desc, newTestAdapter(t), WithName(t.Name()+"-partitioned"))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Insert(ctx, tup("A", "1")), window.ErrNoPartitioner)
}

func TestController_TupleCountEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c, r := newController(t, newTestAdapter(t), window.WithPartitioned(true), window.WithTupleCount(2))
	require.NoError(t, c.Insert(ctx, tup("A", "1")))
	require.NoError(t, c.Insert(ctx, tup("B", "2")))
	require.NoError(t, c.Insert(ctx, tup("C", "1")))

	evictions := r.ofType(window.PartitionEviction)
	require.Len(t, evictions, 1)
	assert.Equal(t, "2", evictions[0].key)
	assert.Equal(t, []string{"B"}, evictions[0].payloads)
	assert.Equal(t, int64(2), c.TupleCount())
	keys, err := c.Partitions()
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, keys)
}

func TestController_ListenerEvictsThroughWindow(t *testing.T) {
	ctx := context.Background()
	c, r := newController(t, newTestAdapter(t), window.WithPartitioned(true), window.WithTupleCount(2))
	r.onEvent = func(e window.Event) error {
		if e.Type != window.Insertion || !e.Window.NeedsPartitionEviction() {
			return nil
		}
		for _, key := range e.Window.PartitionKeys() {
			if key != e.PartitionKey {
				return e.Window.EvictPartition(key)
			}
		}
		return nil
	}
	require.NoError(t, c.Insert(ctx, tup("A", "1")))
	require.NoError(t, c.Insert(ctx, tup("B", "2")))
	require.NoError(t, c.Insert(ctx, tup("C", "3")))

	evictions := r.ofType(window.PartitionEviction)
	require.Len(t, evictions, 1)
	assert.Equal(t, "1", evictions[0].key)
	assert.Equal(t, int64(2), c.TupleCount())
}

func TestController_FailingListenerKeepsCount(t *testing.T) {
	ctx := context.Background()
	c, r := newController(t, newTestAdapter(t), window.WithPartitioned(true), window.WithTupleCount(2))
	r.onEvent = func(e window.Event) error {
		return fmt.Errorf("listener failed on %s", e.Type)
	}
	for i, key := range []string{"1", "2", "3", "1"} {
		assert.Error(t, c.Insert(ctx, tup(fmt.Sprint(i), key)))
		var sum int64
		c.Lock()
		for _, p := range c.ActiveWindowPartitions() {
			sum += int64(p.Len())
		}
		assert.False(t, c.NeedsPartitionEviction())
		c.Unlock()
		assert.Equal(t, sum, c.TupleCount())
	}
	assert.Equal(t, int64(2), c.TupleCount())
}

func TestController_AgeEviction(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	c, r := newController(t, a, window.WithPartitioned(true), window.WithPartitionAge(time.Second))
	require.NoError(t, c.Insert(ctx, tup("A", "a")))

	for i := 1; i <= 6; i++ {
		a.mock.Add(500 * time.Millisecond)
		require.Eventually(t, func() bool { return tasksRun(c, "age-sweep") == float64(i) }, time.Second, time.Millisecond)
		if i < 3 {
			assert.Empty(t, r.ofType(window.PartitionEviction))
		}
	}
	evictions := r.ofType(window.PartitionEviction)
	require.Len(t, evictions, 1)
	assert.Equal(t, "a", evictions[0].key)
	assert.Equal(t, int64(0), c.TupleCount())
	require.NoError(t, c.CancelAllBackgroundTasks(ctx))
}

func TestController_FinalMarkCancelsWaitingTask(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	c, r := newController(t, a, window.WithPartitioned(true), window.WithPartitionAge(time.Second))
	require.NoError(t, c.Insert(ctx, tup("A", "a")))
	a.mock.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool { return tasksRun(c, "age-sweep") == 1 }, time.Second, time.Millisecond)

	// the sweep that would evict "a" fires while the lock is held
	c.Lock()
	a.mock.Add(time.Second)
	require.Eventually(t, func() bool { return c.background.InFlight() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.CancelAllBackgroundTasks(ctx))
	assert.True(t, c.FinalMarkSeen())
	assert.Equal(t, 0, c.background.InFlight())
	c.Unlock()

	require.NoError(t, c.Drain(ctx))
	require.NoError(t, c.MarkAll(ctx, tuple.FinalMarker))
	a.mock.Add(10 * time.Second)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, float64(1), tasksRun(c, "age-sweep"))
	assert.Empty(t, r.ofType(window.PartitionEviction))
	finals := r.ofType(window.Final)
	require.Len(t, finals, 1)
	assert.Equal(t, []string{"A"}, finals[0].payloads)
	assert.Nil(t, c.ScheduleOnce("late", func(ctx context.Context) error { return nil }, 0))
	assert.Nil(t, c.ScheduleRepeating("late", func(ctx context.Context) error { return nil }, 0, time.Second))
}

func TestController_CheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	opts := []window.Option{window.WithPartitioned(true)}
	src, _ := newController(t, newTestAdapter(t), opts...)
	for _, in := range [][2]string{{"a1", "a"}, {"b1", "b"}, {"a2", "a"}, {"b2", "b"}} {
		require.NoError(t, src.Insert(ctx, tup(in[0], in[1])))
	}
	src.Lock()
	for _, p := range src.ActiveWindowPartitions() {
		it := p.View().Iterator()
		require.True(t, it.HasNext())
		_, err := it.Next()
		require.NoError(t, err)
		require.NoError(t, it.Remove())
	}
	src.Unlock()

	var buf bytes.Buffer
	require.NoError(t, src.Checkpoint(ctx, &buf))

	dst, _ := newController(t, newTestAdapter(t), opts...)
	require.NoError(t, dst.Insert(ctx, tup("stale", "z")))
	require.NoError(t, dst.Reset(ctx, bytes.NewReader(buf.Bytes())))

	keys, err := dst.Partitions()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, int64(4), dst.TupleCount())
	want := map[string]string{"a": "a2", "b": "b2"}
	for _, p := range dst.ActiveWindowPartitions() {
		view := p.View()
		require.Equal(t, 2, view.Len())
		it := view.Iterator()
		require.True(t, it.HasNext())
		tp, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, want[p.Key()], string(tp.Payload))
		assert.False(t, it.HasNext())
		assert.False(t, p.Active())
	}

	// a truncated stream leaves the window empty
	require.Error(t, dst.Reset(ctx, bytes.NewReader(buf.Bytes()[:buf.Len()-3])))
	assert.Empty(t, dst.ActiveWindowPartitions())
	assert.Equal(t, int64(0), dst.TupleCount())
}

func TestController_CheckpointLRU(t *testing.T) {
	ctx := context.Background()
	opts := []window.Option{window.WithPartitioned(true), window.WithTupleCount(3)}
	src, _ := newController(t, newTestAdapter(t), opts...)
	for _, in := range [][2]string{{"A", "1"}, {"B", "2"}, {"C", "1"}} {
		require.NoError(t, src.Insert(ctx, tup(in[0], in[1])))
	}
	var buf bytes.Buffer
	require.NoError(t, src.Checkpoint(ctx, &buf))

	dst, r := newController(t, newTestAdapter(t), opts...)
	require.NoError(t, dst.Reset(ctx, &buf))
	assert.Equal(t, int64(3), dst.TupleCount())
	// "2" is the least recently used partition
	require.NoError(t, dst.Insert(ctx, tup("D", "3")))
	evictions := r.ofType(window.PartitionEviction)
	require.Len(t, evictions, 1)
	assert.Equal(t, "2", evictions[0].key)
}

func TestController_ResetToInitialState(t *testing.T) {
	ctx := context.Background()
	c, r := newController(t, newTestAdapter(t), window.WithPartitioned(true))
	require.NoError(t, c.Insert(ctx, tup("A", "a")))
	require.NoError(t, c.ResetToInitialState(ctx))
	assert.Empty(t, c.ActiveWindowPartitions())
	assert.Equal(t, int64(0), c.TupleCount())
	// discarding is not an eviction
	assert.Empty(t, r.ofType(window.PartitionEviction))
}

// timerPolicy triggers its partition on a periodic timer.
type timerPolicy struct {
	partition.RetainAll
	timer *partition.PeriodicTimer
}

func (p *timerPolicy) Activate(part *partition.Partition) error {
	p.timer.Activate(part)
	return nil
}

func (p *timerPolicy) Deactivate(*partition.Partition) {
	p.timer.Deactivate()
}

func timerFactory(period time.Duration, err error) partition.Factory {
	return partition.FactoryFunc(func(key string, desc *window.Descriptor) (partition.Policy, error) {
		return &timerPolicy{timer: partition.NewPeriodicTimer("trigger", period, func(p *partition.Partition) error {
			if err != nil {
				return err
			}
			return p.Trigger()
		})}, nil
	})
}

func TestController_KickOffActivation(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	desc, err := window.NewDescriptor(window.WithPartitioned(true))
	require.NoError(t, err)
	c, err := New(ctx, desc, a, WithName(t.Name()), WithFactory(timerFactory(time.Second, nil)))
	require.NoError(t, err)
	r := &recorder{}
	c.RegisterListener(r)
	require.NoError(t, c.RegisterPartitioner(window.KeysPartitioner()))

	require.NoError(t, c.Insert(ctx, tup("A", "a")))
	assert.False(t, c.ActiveWindowPartitions()[0].Active())
	assert.Equal(t, 0, c.BackgroundTasks())

	a.allPortsReady()
	require.Eventually(t, func() bool { return tasksRun(c, "activate") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.BackgroundTasks())

	// created after activation, so activated on creation
	require.NoError(t, c.Insert(ctx, tup("B", "b")))
	assert.Equal(t, 2, c.BackgroundTasks())

	a.mock.Add(time.Second)
	require.Eventually(t, func() bool { return tasksRun(c, "trigger") == 2 }, time.Second, time.Millisecond)
	assert.Len(t, r.ofType(window.Trigger), 2)

	// evicting a partition cancels its timer
	require.NoError(t, c.EvictPartition(ctx, "a"))
	assert.Equal(t, 1, c.BackgroundTasks())

	require.NoError(t, c.Drain(ctx))
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, 0, c.BackgroundTasks())
	assert.False(t, c.ActiveWindowPartitions()[0].Active())

	require.NoError(t, c.ActivatePartitions(ctx))
	assert.Equal(t, 1, c.BackgroundTasks())
	require.NoError(t, c.CancelAllBackgroundTasks(ctx))
	assert.Equal(t, 0, c.BackgroundTasks())
}

func TestController_BackgroundError(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	desc, err := window.NewDescriptor()
	require.NoError(t, err)
	boom := errors.New("boom")
	c, err := New(ctx, desc, a, WithName(t.Name()), WithFactory(timerFactory(time.Second, boom)))
	require.NoError(t, err)
	require.NoError(t, c.Insert(ctx, tup("A")))
	a.allPortsReady()
	require.Eventually(t, func() bool { return tasksRun(c, "activate") == 1 }, time.Second, time.Millisecond)

	a.mock.Add(time.Second)
	select {
	case err := <-a.errs:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("background error not reported")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(backgroundErrors.WithLabelValues(c.name, "trigger")))
	require.NoError(t, c.CancelAllBackgroundTasks(ctx))
}

func TestController_LockAssertions(t *testing.T) {
	c, _ := newController(t, newTestAdapter(t))
	assert.False(t, c.Locked())
	assert.Panics(t, func() { c.NeedsPartitionEviction() })
	assert.Panics(t, func() { _ = c.Dispatch(window.Event{Type: window.Trigger}) })
	c.Lock()
	assert.True(t, c.Locked())
	assert.False(t, c.NeedsPartitionEviction())
	c.Unlock()

	c.Lock()
	defer c.Unlock()
	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Insert(cctx, tup("A")), context.DeadlineExceeded)
}
