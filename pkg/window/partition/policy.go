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
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
)

// Policy is the tuple level eviction and trigger algorithm of a partition, e.g. a count based tumbling
// window. Hooks are called with the window lock held and act on the partition through its EvictOldest,
// EvictAll, Trigger and InitialFull methods.
type Policy interface {
	// BeforeInsert runs after the tuple is appended and before the Insertion event.
	BeforeInsert(p *Partition, t *tuple.Tuple) error
	// AfterInsert runs after the Insertion event.
	AfterInsert(p *Partition, t *tuple.Tuple) error
	// Mark runs after the WindowMarker event.
	Mark(p *Partition, punct tuple.Punctuation) error
	// Activate starts time driven behaviour. It may be called again to re-arm after a pause.
	Activate(p *Partition) error
	// Deactivate stops time driven behaviour.
	Deactivate(p *Partition)
	// Drain flushes pending work that is not part of the checkpointed state.
	Drain(p *Partition) error
	// MarshalState and UnmarshalState persist the policy state with the partition.
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Factory creates the policy of a new partition.
type Factory interface {
	NewPolicy(key string, desc *window.Descriptor) (Policy, error)
}

// FactoryFunc adapts a function to a Factory.
type FactoryFunc func(key string, desc *window.Descriptor) (Policy, error)

func (f FactoryFunc) NewPolicy(key string, desc *window.Descriptor) (Policy, error) {
	return f(key, desc)
}

// RetainAll keeps every tuple until its partition is evicted. Policies can embed it and override only the
// hooks they need.
type RetainAll struct{}

var _ Policy = RetainAll{}

func (RetainAll) BeforeInsert(*Partition, *tuple.Tuple) error { return nil }

func (RetainAll) AfterInsert(*Partition, *tuple.Tuple) error { return nil }

func (RetainAll) Mark(*Partition, tuple.Punctuation) error { return nil }

func (RetainAll) Activate(*Partition) error { return nil }

func (RetainAll) Deactivate(*Partition) {}

func (RetainAll) Drain(*Partition) error { return nil }

func (RetainAll) MarshalState() ([]byte, error) { return nil, nil }

func (RetainAll) UnmarshalState([]byte) error { return nil }

// RetainAllFactory returns a factory creating RetainAll policies.
func RetainAllFactory() Factory {
	return FactoryFunc(func(string, *window.Descriptor) (Policy, error) {
		return RetainAll{}, nil
	})
}
