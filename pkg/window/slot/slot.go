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

// Package slot implements the retention unit of a window partition and the
// iterable views over it handed to window listeners.
//
// A slot keeps its position in the partition after its tuple is released. Release
// is O(1) and never compacts the partition, so the partition length used for
// eviction accounting is not changed by listeners dropping tuple references.
package slot

import (
	"errors"

	"github.com/numaproj/numawindow/pkg/tuple"
)

var (
	// ErrNoNext is returned by Iterator.Next when it is not preceded by a HasNext that returned true.
	ErrNoNext = errors.New("iterator: Next called without a successful HasNext")
	// ErrIllegalState is returned by Iterator.Remove when there is no current element.
	ErrIllegalState = errors.New("iterator: Remove called without a current element")
)

// Slot holds a single tuple reference, or nothing once released.
type Slot struct {
	t *tuple.Tuple
}

// New returns a slot holding t.
func New(t *tuple.Tuple) *Slot {
	return &Slot{t: t}
}

// Tuple returns the retained tuple, nil once released.
func (s *Slot) Tuple() *tuple.Tuple {
	return s.t
}

// Released reports whether the tuple reference has been dropped.
func (s *Slot) Released() bool {
	return s.t == nil
}

// Release drops the tuple reference.
func (s *Slot) Release() {
	s.t = nil
}
