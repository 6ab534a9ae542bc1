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

// Package directory keeps the partitions of a window and implements partition level eviction.
//
// A Directory is a single type tagged with a Mode:
//   - Fixed - one partition under FixedKey, for windows that are not partitioned
//   - Dynamic - a partition per key, never evicted automatically
//   - LRUAge - partitions are evicted once they have not received a tuple for the configured age
//   - LRUPartitionCount - the least recently used partition is evicted while there are too many partitions
//   - LRUTupleCount - the least recently used partition is evicted while there are too many tuples
//
// The LRU modes keep an order list of partition keys, least recently inserted into first. LRUAge does not
// timestamp every insert. Instead a periodic AgeSweep appends an age marker to the order list, and a later
// sweep evicts every key that precedes a marker which is at least the configured age old: none of those
// partitions has received a tuple since the marker was placed.
//
// Every method except Keys and Partitions must be called with the window lock held. Keys and Partitions
// read a separately synchronized snapshot so introspection never waits on event dispatch; the snapshot is
// eventually consistent with the locked state.
package directory

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/partition"
)

// FixedKey is the key of the only partition of a window that is not partitioned.
const FixedKey = ""

const (
	minAgeSweepPeriod = 500 * time.Millisecond
	maxAgeSweepPeriod = 10 * time.Second
)

// Mode is the partitioning strategy of a Directory.
type Mode int

const (
	Fixed Mode = iota
	Dynamic
	LRUAge
	LRUPartitionCount
	LRUTupleCount
)

func (m Mode) String() string {
	switch m {
	case Fixed:
		return "Fixed"
	case Dynamic:
		return "Dynamic"
	case LRUAge:
		return "LRUAge"
	case LRUPartitionCount:
		return "LRUPartitionCount"
	case LRUTupleCount:
		return "LRUTupleCount"
	default:
		return "Unknown"
	}
}

func (m Mode) ordered() bool {
	return m == LRUAge || m == LRUPartitionCount || m == LRUTupleCount
}

// ModeFor returns the mode implementing the partitioning of desc.
func ModeFor(desc *window.Descriptor) Mode {
	if !desc.Partitioned() {
		return Fixed
	}
	switch desc.PartitionEviction().Kind {
	case window.EvictPartitionAge:
		return LRUAge
	case window.EvictPartitionCount:
		return LRUPartitionCount
	case window.EvictTupleCount:
		return LRUTupleCount
	default:
		return Dynamic
	}
}

// AgeSweepPeriod returns how often AgeSweep runs for a partition age: a tenth of the age, kept between
// 500ms and 10s.
func AgeSweepPeriod(age time.Duration) time.Duration {
	p := age / 10
	if p < minAgeSweepPeriod {
		return minAgeSweepPeriod
	}
	if p > maxAgeSweepPeriod {
		return maxAgeSweepPeriod
	}
	return p
}

// lruEntry is an entry of the order list, either a partition key or an age marker. Markers are numbered
// from 1 so the zero marker identifies a key entry.
type lruEntry struct {
	key    string
	marker uint64
}

func (e lruEntry) isMarker() bool {
	return e.marker != 0
}

// BuildFunc creates an empty partition for a key.
type BuildFunc func(key string) (*partition.Partition, error)

// Directory is the set of partitions of a window.
type Directory struct {
	mode  Mode
	limit int
	age   time.Duration
	build BuildFunc

	partitions map[string]*partition.Partition
	// order is the LRU order list, nil unless the mode is ordered. Values are the placement time of markers.
	order      *simplelru.LRU[lruEntry, time.Time]
	lastMarker uint64
	markers    int
	// tuples is the number of slots across all partitions
	tuples *atomic.Int64

	snapshotLock sync.RWMutex
	snapshot     map[string]*partition.Partition
}

// New returns an empty directory for desc. build is called for every partition created on insert or
// restore.
func New(desc *window.Descriptor, build BuildFunc) (*Directory, error) {
	d := &Directory{
		mode:       ModeFor(desc),
		build:      build,
		partitions: make(map[string]*partition.Partition),
		tuples:     atomic.NewInt64(0),
		snapshot:   make(map[string]*partition.Partition),
	}
	pe := desc.PartitionEviction()
	switch d.mode {
	case LRUAge:
		d.age = pe.Age
	case LRUPartitionCount, LRUTupleCount:
		d.limit = pe.Count
	}
	if d.mode.ordered() {
		order, err := simplelru.NewLRU[lruEntry, time.Time](math.MaxInt, nil)
		if err != nil {
			return nil, err
		}
		d.order = order
	}
	return d, nil
}

// Mode returns the partitioning mode.
func (d *Directory) Mode() Mode {
	return d.mode
}

// Age returns the partition age of an LRUAge directory.
func (d *Directory) Age() time.Duration {
	return d.age
}

// Len returns the number of partitions.
func (d *Directory) Len() int {
	return len(d.partitions)
}

// TupleCount returns the number of slots across all partitions. It can be read without the window lock.
func (d *Directory) TupleCount() int64 {
	return d.tuples.Load()
}

// Get returns the partition for key.
func (d *Directory) Get(key string) (*partition.Partition, bool) {
	p, ok := d.partitions[key]
	return p, ok
}

// ResolveOrCreate returns the partition for key, creating it when missing, and marks it as the most
// recently used. created reports whether the partition is new.
func (d *Directory) ResolveOrCreate(key string) (p *partition.Partition, created bool, err error) {
	if d.mode == Fixed && key != FixedKey {
		return nil, false, fmt.Errorf("%w: got partition key %q", window.ErrNotPartitioned, key)
	}
	if p, ok := d.partitions[key]; ok {
		if d.order != nil {
			// Get moves the key to the most recently used end
			d.order.Get(lruEntry{key: key})
		}
		return p, false, nil
	}
	p, err = d.build(key)
	if err != nil {
		return nil, false, err
	}
	d.add(p)
	return p, true, nil
}

// Inserted accounts for one slot appended by an insert. It must be called before the partition insert
// dispatches its Insertion event.
func (d *Directory) Inserted() {
	d.tuples.Inc()
}

// TuplesEvicted accounts for n slots evicted by a partition policy.
func (d *Directory) TuplesEvicted(n int) {
	d.tuples.Sub(int64(n))
}

// Restore adds a partition read from a checkpoint, as the most recently used.
func (d *Directory) Restore(p *partition.Partition) error {
	if _, ok := d.partitions[p.Key()]; ok {
		return fmt.Errorf("duplicate partition %q in checkpoint", p.Key())
	}
	if d.mode == Fixed && p.Key() != FixedKey {
		return fmt.Errorf("%w: checkpoint holds partition key %q", window.ErrNotPartitioned, p.Key())
	}
	d.add(p)
	d.tuples.Add(int64(p.Len()))
	return nil
}

func (d *Directory) add(p *partition.Partition) {
	d.partitions[p.Key()] = p
	if d.order != nil {
		d.order.Add(lruEntry{key: p.Key()}, time.Time{})
	}
	d.snapshotLock.Lock()
	d.snapshot[p.Key()] = p
	d.snapshotLock.Unlock()
}

func (d *Directory) remove(key string) (*partition.Partition, bool) {
	p, ok := d.partitions[key]
	if !ok {
		return nil, false
	}
	delete(d.partitions, key)
	if d.order != nil {
		d.order.Remove(lruEntry{key: key})
	}
	d.tuples.Sub(int64(p.Len()))
	d.snapshotLock.Lock()
	delete(d.snapshot, key)
	d.snapshotLock.Unlock()
	return p, true
}

// Evict removes the partition for key and raises its PartitionEviction event. The partition is removed and
// its tuples are subtracted from the tuple count before the event, so a failing listener leaves the
// directory consistent. Evicting an unknown key is a no-op.
func (d *Directory) Evict(key string) error {
	if d.mode == Fixed {
		return window.ErrNotPartitioned
	}
	p, ok := d.remove(key)
	if !ok {
		return nil
	}
	return p.Evict()
}

// DiscardAll drops every partition without raising events. Partitions are deactivated first.
func (d *Directory) DiscardAll() {
	for _, p := range d.partitions {
		p.Deactivate()
	}
	d.partitions = make(map[string]*partition.Partition)
	if d.order != nil {
		d.order.Purge()
	}
	d.markers = 0
	d.tuples.Store(0)
	d.snapshotLock.Lock()
	d.snapshot = make(map[string]*partition.Partition)
	d.snapshotLock.Unlock()
}

// Keys returns the partition keys in key order without taking the window lock.
func (d *Directory) Keys() []string {
	d.snapshotLock.RLock()
	defer d.snapshotLock.RUnlock()
	keys := make([]string, 0, len(d.snapshot))
	for k := range d.snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Partitions returns the partitions without taking the window lock. The partitions themselves must only be
// used with the window lock held.
func (d *Directory) Partitions() []*partition.Partition {
	d.snapshotLock.RLock()
	defer d.snapshotLock.RUnlock()
	out := make([]*partition.Partition, 0, len(d.snapshot))
	for _, p := range d.snapshot {
		out = append(out, p)
	}
	return out
}

// Ordered returns the partitions in directory order: least recently used first for the LRU modes, key
// order otherwise.
func (d *Directory) Ordered() []*partition.Partition {
	out := make([]*partition.Partition, 0, len(d.partitions))
	if d.order != nil {
		for _, e := range d.order.Keys() {
			if !e.isMarker() {
				out = append(out, d.partitions[e.key])
			}
		}
		return out
	}
	keys := make([]string, 0, len(d.partitions))
	for k := range d.partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, d.partitions[k])
	}
	return out
}

// Markers returns the number of age markers in the order list.
func (d *Directory) Markers() int {
	return d.markers
}

// NeedsEviction reports whether a count based mode is over its limit.
func (d *Directory) NeedsEviction() bool {
	switch d.mode {
	case LRUPartitionCount:
		return len(d.partitions) > d.limit
	case LRUTupleCount:
		return d.tuples.Load() > int64(d.limit)
	default:
		return false
	}
}

// OldestForEviction returns the least recently used partition key. Leading age markers are removed first,
// so the result is never a marker.
func (d *Directory) OldestForEviction() (string, bool) {
	if d.order == nil {
		return "", false
	}
	for {
		e, _, ok := d.order.GetOldest()
		if !ok {
			return "", false
		}
		if !e.isMarker() {
			return e.key, true
		}
		d.order.RemoveOldest()
		d.markers--
	}
}

// Sweep evicts partitions while a count based mode is over its limit. Old empty partitions, up to the
// first one holding tuples, are reclaimed first; then the least recently used partition is evicted until
// the limit holds; then old empty partitions are reclaimed again. Listener errors do not stop the sweep.
func (d *Directory) Sweep() error {
	if !d.NeedsEviction() {
		return nil
	}
	errs := d.reclaimEmpty()
	evicted := false
	for d.NeedsEviction() {
		key, ok := d.OldestForEviction()
		if !ok {
			break
		}
		errs = multierr.Append(errs, d.Evict(key))
		evicted = true
	}
	if evicted {
		errs = multierr.Append(errs, d.reclaimEmpty())
	}
	return errs
}

func (d *Directory) reclaimEmpty() error {
	var errs error
	for {
		key, ok := d.OldestForEviction()
		if !ok {
			return errs
		}
		if p := d.partitions[key]; !p.Empty() {
			return errs
		}
		errs = multierr.Append(errs, d.Evict(key))
	}
}

// AgeSweep runs one age eviction pass at now. Every partition key preceding the newest marker that is at
// least the partition age old is evicted and those markers are dropped. A fresh marker is then appended
// unless the newest entry already is a marker, which then keeps aging.
func (d *Directory) AgeSweep(now time.Time) error {
	if d.mode != LRUAge {
		return nil
	}
	entries := d.order.Keys()
	cut := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].isMarker() {
			continue
		}
		if placed, _ := d.order.Peek(entries[i]); now.Sub(placed) >= d.age {
			cut = i
			break
		}
	}
	var keys []string
	for _, e := range entries[:cut+1] {
		if e.isMarker() {
			d.order.Remove(e)
			d.markers--
			continue
		}
		keys = append(keys, e.key)
	}
	var errs error
	for _, key := range keys {
		errs = multierr.Append(errs, d.Evict(key))
	}
	if newest := d.order.Keys(); len(newest) == 0 || !newest[len(newest)-1].isMarker() {
		d.lastMarker++
		d.order.Add(lruEntry{marker: d.lastMarker}, now)
		d.markers++
	}
	return errs
}
