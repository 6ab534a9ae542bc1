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

package slot

import (
	"github.com/numaproj/numawindow/pkg/tuple"
)

// View is a forward only, restartable view over a sequence of slots. Each call to
// Iterator starts again from the first slot. Released slots are skipped.
//
// A view captures the slots it was built from; later changes to the partition's
// slot sequence do not change the view, but releasing a slot through any view is
// visible to every view sharing it.
type View struct {
	slots []*Slot
}

// NewView returns a view over slots, oldest first.
func NewView(slots []*Slot) View {
	s := make([]*Slot, len(slots))
	copy(s, slots)
	return View{slots: s}
}

// Len returns the number of slots in the view, released ones included.
func (v View) Len() int {
	return len(v.slots)
}

// Tuples returns the retained tuples, oldest first.
func (v View) Tuples() []*tuple.Tuple {
	out := make([]*tuple.Tuple, 0, len(v.slots))
	for _, s := range v.slots {
		if t := s.Tuple(); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Iterator returns a fresh iterator positioned before the first slot.
func (v View) Iterator() *Iterator {
	return &Iterator{slots: v.slots, next: -1, current: -1}
}

// Iterator walks a View. It is not safe for concurrent use.
type Iterator struct {
	slots []*Slot
	// next is the index of the slot found by the last successful HasNext, -1 if none
	next int
	// current is the index of the slot returned by the last Next, -1 if none
	current int
	pos     int
}

// HasNext reports whether a retained tuple remains.
func (it *Iterator) HasNext() bool {
	if it.next >= 0 {
		return true
	}
	for it.pos < len(it.slots) {
		i := it.pos
		it.pos++
		if !it.slots[i].Released() {
			it.next = i
			return true
		}
	}
	return false
}

// Next returns the next retained tuple. It must follow a HasNext that returned true.
func (it *Iterator) Next() (*tuple.Tuple, error) {
	if it.next < 0 {
		return nil, ErrNoNext
	}
	it.current = it.next
	it.next = -1
	t := it.slots[it.current].Tuple()
	if t == nil {
		// released between HasNext and Next
		return nil, ErrNoNext
	}
	return t, nil
}

// Remove releases the slot of the tuple last returned by Next. The slot keeps its
// position in the partition.
func (it *Iterator) Remove() error {
	if it.current < 0 {
		return ErrIllegalState
	}
	it.slots[it.current].Release()
	it.current = -1
	return nil
}
