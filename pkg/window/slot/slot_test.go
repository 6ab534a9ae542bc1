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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numawindow/pkg/tuple"
)

func newSlots(payloads ...string) []*Slot {
	slots := make([]*Slot, 0, len(payloads))
	for _, p := range payloads {
		slots = append(slots, New(tuple.New(time.Time{}, []byte(p))))
	}
	return slots
}

func payloads(tuples []*tuple.Tuple) []string {
	out := make([]string, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, string(t.Payload))
	}
	return out
}

func TestSlot_Release(t *testing.T) {
	s := New(tuple.New(time.Time{}, []byte("a")))
	assert.False(t, s.Released())
	assert.Equal(t, "a", string(s.Tuple().Payload))
	s.Release()
	assert.True(t, s.Released())
	assert.Nil(t, s.Tuple())
}

func TestView_SkipsReleased(t *testing.T) {
	slots := newSlots("a", "b", "c")
	slots[1].Release()
	v := NewView(slots)
	assert.Equal(t, 3, v.Len())
	assert.Equal(t, []string{"a", "c"}, payloads(v.Tuples()))

	var got []string
	it := v.Iterator()
	for it.HasNext() {
		tp, err := it.Next()
		require.NoError(t, err)
		got = append(got, string(tp.Payload))
	}
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestView_Restartable(t *testing.T) {
	v := NewView(newSlots("a", "b"))
	for i := 0; i < 2; i++ {
		it := v.Iterator()
		n := 0
		for it.HasNext() {
			_, err := it.Next()
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 2, n)
	}
}

func TestIterator_NextWithoutHasNext(t *testing.T) {
	v := NewView(newSlots("a"))
	it := v.Iterator()
	_, err := it.Next()
	assert.ErrorIs(t, err, ErrNoNext)

	assert.True(t, it.HasNext())
	// repeated HasNext does not advance
	assert.True(t, it.HasNext())
	tp, err := it.Next()
	assert.NoError(t, err)
	assert.Equal(t, "a", string(tp.Payload))
	assert.False(t, it.HasNext())
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrNoNext)
}

func TestIterator_Remove(t *testing.T) {
	slots := newSlots("a", "b", "c")
	v := NewView(slots)
	it := v.Iterator()
	assert.ErrorIs(t, it.Remove(), ErrIllegalState)
	for it.HasNext() {
		tp, err := it.Next()
		require.NoError(t, err)
		if string(tp.Payload) == "b" {
			assert.NoError(t, it.Remove())
			assert.ErrorIs(t, it.Remove(), ErrIllegalState)
		}
	}
	// the slot stays in place and every view sharing it sees the release
	assert.Equal(t, 3, v.Len())
	assert.True(t, slots[1].Released())
	assert.Equal(t, []string{"a", "c"}, payloads(NewView(slots).Tuples()))
}

func TestView_SnapshotsSlots(t *testing.T) {
	slots := newSlots("a")
	v := NewView(slots)
	slots = append(slots, newSlots("b")...)
	assert.Equal(t, 1, v.Len())
	assert.Len(t, slots, 2)
}
