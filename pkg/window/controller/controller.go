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

// Package controller implements the controller of a window on an operator input port. The controller owns
// the window lock, the partition directory, the registered listener and partitioner, and the background
// work of the window.
//
// All window state is mutated and every event is dispatched with the window lock held. The lock is not
// reentrant: exported methods take it themselves, and listener code reaches back into the window only
// through Event.Window, whose methods run under the lock the dispatching goroutine already holds.
//
// Background work (age sweeps, partition timers) runs on the adapter's scheduler. Each task enters a gate
// before waiting for the lock. CancelAllBackgroundTasks seals the gate and waits for every admitted task,
// so once it returns no background work runs again.
package controller

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/shared/gate"
	"github.com/numaproj/numawindow/pkg/shared/logging"
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/directory"
	"github.com/numaproj/numawindow/pkg/window/partition"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
)

// Adapter is the operator hosting a window.
type Adapter interface {
	// Scheduler runs the background work of the window.
	Scheduler() scheduler.Scheduler
	// BackgroundError reports an error returned by background work, e.g. by the listener during an age
	// eviction.
	BackgroundError(err error)
	// OnAllPortsReady registers fn to be called once, when all ports of the operator are ready.
	OnAllPortsReady(fn func())
}

// Controller controls one window.
type Controller struct {
	name    string
	desc    *window.Descriptor
	adapter Adapter
	factory partition.Factory
	log     *zap.SugaredLogger

	sem    *semaphore.Weighted
	locked *atomic.Bool

	regLock     sync.RWMutex
	listener    window.Listener
	partitioner window.Partitioner

	dir *directory.Directory
	// ready is set once partitions are activated after all ports are ready
	ready *atomic.Bool

	background *gate.Gate
	timersLock sync.Mutex
	timers     map[*trackedHandle]struct{}
}

var _ partition.Host = (*Controller)(nil)

// New returns the controller of a window described by desc. Partitions are activated once the adapter
// reports all ports ready, and an LRUAge window starts its age sweep right away.
func New(ctx context.Context, desc *window.Descriptor, adapter Adapter, opts ...Option) (*Controller, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	c := &Controller{
		name:       o.name,
		desc:       desc,
		adapter:    adapter,
		factory:    o.factory,
		log:        logging.FromContext(ctx).With("window", o.name),
		sem:        semaphore.NewWeighted(1),
		locked:     atomic.NewBool(false),
		listener:   window.NoopListener(),
		ready:      atomic.NewBool(false),
		background: gate.New(),
		timers:     make(map[*trackedHandle]struct{}),
	}
	dir, err := directory.New(desc, c.newPartition)
	if err != nil {
		return nil, err
	}
	c.dir = dir
	if dir.Mode() == directory.LRUAge {
		period := directory.AgeSweepPeriod(dir.Age())
		c.ScheduleRepeating("age-sweep", func(ctx context.Context) error {
			err := c.dir.AgeSweep(c.Now())
			c.updateGauges()
			return err
		}, period, period)
	}
	c.KickOffActivation()
	c.log.Infow("Created window", zap.String("descriptor", desc.String()), zap.String("mode", dir.Mode().String()))
	return c, nil
}

func (c *Controller) newPartition(key string) (*partition.Partition, error) {
	policy, err := c.factory.NewPolicy(key, c.desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy for partition %q: %w", key, err)
	}
	return partition.New(key, c, policy), nil
}

// Name returns the window name.
func (c *Controller) Name() string {
	return c.name
}

// Descriptor returns the window descriptor.
func (c *Controller) Descriptor() *window.Descriptor {
	return c.desc
}

// Mode returns the partitioning mode of the window.
func (c *Controller) Mode() directory.Mode {
	return c.dir.Mode()
}

// Lock acquires the window lock.
func (c *Controller) Lock() {
	// Acquire only fails on a done context
	_ = c.sem.Acquire(context.Background(), 1)
	c.locked.Store(true)
}

// LockContext acquires the window lock unless ctx is done first.
func (c *Controller) LockContext(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.locked.Store(true)
	return nil
}

// Unlock releases the window lock.
func (c *Controller) Unlock() {
	c.locked.Store(false)
	c.sem.Release(1)
}

// Locked reports whether the window lock is held.
func (c *Controller) Locked() bool {
	return c.locked.Load()
}

func (c *Controller) assertLocked() {
	if !c.locked.Load() {
		panic(fmt.Sprintf("window %s: lock is not held", c.name))
	}
}

// RegisterListener sets the listener receiving window events. A nil listener ignores every event.
func (c *Controller) RegisterListener(l window.Listener) {
	if l == nil {
		l = window.NoopListener()
	}
	c.regLock.Lock()
	defer c.regLock.Unlock()
	c.listener = l
}

// RegisterPartitioner sets the partitioner of a partitioned window.
func (c *Controller) RegisterPartitioner(p window.Partitioner) error {
	if !c.desc.Partitioned() {
		return window.ErrNotPartitioned
	}
	c.regLock.Lock()
	defer c.regLock.Unlock()
	c.partitioner = p
	return nil
}

func (c *Controller) getListener() window.Listener {
	c.regLock.RLock()
	defer c.regLock.RUnlock()
	return c.listener
}

func (c *Controller) getPartitioner() window.Partitioner {
	c.regLock.RLock()
	defer c.regLock.RUnlock()
	return c.partitioner
}

// Dispatch delivers e to the listener. The window lock must be held.
func (c *Controller) Dispatch(e window.Event) error {
	c.assertLocked()
	e.Window = lockedWindow{c: c}
	windowEvents.WithLabelValues(c.name, e.Type.String()).Inc()
	if err := c.getListener().HandleEvent(e); err != nil {
		listenerErrors.WithLabelValues(c.name, e.Type.String()).Inc()
		return fmt.Errorf("listener failed on %s event of partition %q: %w", e.Type, e.PartitionKey, err)
	}
	return nil
}

// TuplesEvicted accounts for slots evicted by a partition policy.
func (c *Controller) TuplesEvicted(n int) {
	c.dir.TuplesEvicted(n)
}

// Now returns the time of the scheduler's clock.
func (c *Controller) Now() time.Time {
	return c.adapter.Scheduler().Clock().Now()
}

// Insert adds t to the partition chosen by the partitioner, creating the partition when needed, and
// applies partition eviction.
func (c *Controller) Insert(ctx context.Context, t *tuple.Tuple) error {
	key := directory.FixedKey
	if c.desc.Partitioned() {
		p := c.getPartitioner()
		if p == nil {
			return window.ErrNoPartitioner
		}
		k, err := p.Partition(t)
		if err != nil {
			return fmt.Errorf("failed to partition tuple %s: %w", t, err)
		}
		key = k
	}
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	return c.insertLocked(key, t)
}

func (c *Controller) insertLocked(key string, t *tuple.Tuple) error {
	c.assertLocked()
	defer c.updateGauges()
	errs := c.dir.Sweep()
	p, created, err := c.dir.ResolveOrCreate(key)
	if err != nil {
		return multierr.Append(errs, err)
	}
	if created {
		c.log.Debugw("Created partition", zap.String("key", key))
		if c.ready.Load() {
			errs = multierr.Append(errs, p.Activate())
		}
	}
	c.dir.Inserted()
	errs = multierr.Append(errs, p.Insert(t))
	return multierr.Append(errs, c.dir.Sweep())
}

// MarkAll delivers punctuation to every partition. A failing listener does not stop delivery to the
// remaining partitions.
func (c *Controller) MarkAll(ctx context.Context, punct tuple.Punctuation) error {
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	defer c.updateGauges()
	var errs error
	for _, p := range c.dir.Ordered() {
		errs = multierr.Append(errs, p.Mark(punct))
	}
	return errs
}

// EvictPartition evicts the partition for key.
func (c *Controller) EvictPartition(ctx context.Context, key string) error {
	if !c.desc.Partitioned() {
		return window.ErrNotPartitioned
	}
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	return c.evictPartitionLocked(key)
}

func (c *Controller) evictPartitionLocked(key string) error {
	c.assertLocked()
	defer c.updateGauges()
	if err := c.dir.Evict(key); err != nil {
		return err
	}
	c.log.Debugw("Evicted partition", zap.String("key", key))
	return nil
}

// NeedsPartitionEviction reports whether the partition eviction policy would evict a partition now. The
// window lock must be held.
func (c *Controller) NeedsPartitionEviction() bool {
	c.assertLocked()
	return c.dir.NeedsEviction()
}

// Partitions returns the current partition keys without taking the window lock.
func (c *Controller) Partitions() ([]string, error) {
	if !c.desc.Partitioned() {
		return nil, window.ErrNotPartitioned
	}
	return c.dir.Keys(), nil
}

// ActiveWindowPartitions returns the current partitions without taking the window lock. The partitions
// must only be used with the window lock held.
func (c *Controller) ActiveWindowPartitions() []*partition.Partition {
	return c.dir.Partitions()
}

// TupleCount returns the number of tuples held by the window without taking the window lock.
func (c *Controller) TupleCount() int64 {
	return c.dir.TupleCount()
}

// KickOffActivation activates the partitions once all ports of the operator are ready. Partitions created
// afterwards are activated when they are created.
func (c *Controller) KickOffActivation() {
	activate := c.task("activate", func(ctx context.Context) error {
		c.ready.Store(true)
		return c.activatePartitionsLocked()
	})
	c.adapter.OnAllPortsReady(func() {
		activate(context.Background())
	})
}

// ActivatePartitions activates every partition, re-arming their timers, e.g. when processing resumes.
func (c *Controller) ActivatePartitions(ctx context.Context) error {
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	return c.activatePartitionsLocked()
}

func (c *Controller) activatePartitionsLocked() error {
	c.assertLocked()
	var errs error
	for _, p := range c.dir.Ordered() {
		errs = multierr.Append(errs, p.Activate())
	}
	return errs
}

// Drain deactivates and drains every partition. Draining twice has the same effect as draining once.
func (c *Controller) Drain(ctx context.Context) error {
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	var errs error
	for _, p := range c.dir.Ordered() {
		p.Deactivate()
		errs = multierr.Append(errs, p.Drain())
	}
	return errs
}

func (c *Controller) updateGauges() {
	windowPartitions.WithLabelValues(c.name, c.dir.Mode().String()).Set(float64(c.dir.Len()))
	windowTuples.WithLabelValues(c.name).Set(float64(c.dir.TupleCount()))
}

// Checkpoint drains every partition and writes the window state to w: the partition count, a record per
// partition in directory order and the directory trailer.
func (c *Controller) Checkpoint(ctx context.Context, w io.Writer) error {
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	// pending policy work is not part of the checkpoint
	for _, p := range c.dir.Ordered() {
		if err := p.Drain(); err != nil {
			return err
		}
	}
	cw := &countingWriter{w: w}
	enc := checkpoint.NewEncoder(cw)
	partitions := c.dir.Ordered()
	if err := enc.WriteInt32(int32(len(partitions))); err != nil {
		return err
	}
	for _, p := range partitions {
		if err := p.Encode(enc); err != nil {
			return err
		}
	}
	if err := c.dir.WriteTrailer(enc); err != nil {
		return err
	}
	checkpointSize.WithLabelValues(c.name).Observe(float64(cw.n))
	c.log.Debugw("Checkpointed window", zap.Int("partitions", len(partitions)), zap.Int64("bytes", cw.n))
	return nil
}

// Reset discards the window contents and restores the state written by Checkpoint. Restored partitions
// are inactive until ActivatePartitions. On error the window is left empty.
func (c *Controller) Reset(ctx context.Context, r io.Reader) (err error) {
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	defer c.updateGauges()
	c.dir.DiscardAll()
	defer func() {
		if err != nil {
			c.dir.DiscardAll()
		}
	}()
	dec := checkpoint.NewDecoder(r)
	n, err := dec.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		return checkpoint.ErrNegativeLength
	}
	for i := int32(0); i < n; i++ {
		p, err := partition.Decode(dec, c.newPartition)
		if err != nil {
			return fmt.Errorf("failed to restore partition %d of %d: %w", i+1, n, err)
		}
		if err := c.dir.Restore(p); err != nil {
			return err
		}
	}
	if err := c.dir.ReadTrailer(dec); err != nil {
		return err
	}
	c.log.Infow("Restored window", zap.Int32("partitions", n), zap.Int64("tuples", c.dir.TupleCount()))
	return nil
}

// ResetToInitialState discards the window contents.
func (c *Controller) ResetToInitialState(ctx context.Context) error {
	if err := c.LockContext(ctx); err != nil {
		return err
	}
	defer c.Unlock()
	c.dir.DiscardAll()
	c.updateGauges()
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// lockedWindow is the Window handed to listeners. Its methods run under the lock held by the dispatching
// goroutine.
type lockedWindow struct {
	c *Controller
}

func (w lockedWindow) Descriptor() *window.Descriptor {
	return w.c.desc
}

func (w lockedWindow) PartitionKeys() []string {
	w.c.assertLocked()
	partitions := w.c.dir.Ordered()
	keys := make([]string, 0, len(partitions))
	for _, p := range partitions {
		keys = append(keys, p.Key())
	}
	return keys
}

func (w lockedWindow) EvictPartition(key string) error {
	if !w.c.desc.Partitioned() {
		return window.ErrNotPartitioned
	}
	return w.c.evictPartitionLocked(key)
}

func (w lockedWindow) NeedsPartitionEviction() bool {
	return w.c.NeedsPartitionEviction()
}
