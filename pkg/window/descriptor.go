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

package window

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotPartitioned is returned when a partitioned only operation is used on a window that is not partitioned.
	ErrNotPartitioned = errors.New("window is not partitioned")
	// ErrNoPartitioner is returned when a tuple arrives on a partitioned window before a partitioner is registered.
	ErrNoPartitioner = errors.New("no partitioner registered for partitioned window")
	// ErrInvalidDescriptor is wrapped by every descriptor validation error.
	ErrInvalidDescriptor = errors.New("invalid window descriptor")
)

// Kind is the kind of window on a port.
type Kind int

const (
	NotWindowed Kind = iota
	Tumbling
	Sliding
)

func (k Kind) String() string {
	switch k {
	case NotWindowed:
		return "NotWindowed"
	case Tumbling:
		return "Tumbling"
	case Sliding:
		return "Sliding"
	default:
		return "Unknown"
	}
}

// PolicyType is the type of an eviction or trigger policy.
type PolicyType int

const (
	PolicyNone PolicyType = iota
	PolicyCount
	PolicyTime
	PolicyDelta
	PolicyPunctuation
)

func (t PolicyType) String() string {
	switch t {
	case PolicyNone:
		return "None"
	case PolicyCount:
		return "Count"
	case PolicyTime:
		return "Time"
	case PolicyDelta:
		return "Delta"
	case PolicyPunctuation:
		return "Punctuation"
	default:
		return "Unknown"
	}
}

// Policy is an eviction or trigger policy together with its configuration. Only the fields relevant to
// Type are set.
type Policy struct {
	Type PolicyType
	// Count is the size of a count based policy.
	Count int
	// Period is the period of a time based policy.
	Period time.Duration
	// Attribute and Delta configure a delta based policy.
	Attribute string
	Delta     float64
}

// CountValue returns the size of a count based policy, 0 for other policy types.
func (p Policy) CountValue() int {
	if p.Type != PolicyCount {
		return 0
	}
	return p.Count
}

// PeriodValue returns the period of a time based policy, 0 for other policy types.
func (p Policy) PeriodValue() time.Duration {
	if p.Type != PolicyTime {
		return 0
	}
	return p.Period
}

func (p Policy) String() string {
	switch p.Type {
	case PolicyCount:
		return fmt.Sprintf("Count(%d)", p.Count)
	case PolicyTime:
		return fmt.Sprintf("Time(%s)", p.Period)
	case PolicyDelta:
		return fmt.Sprintf("Delta(%s, %g)", p.Attribute, p.Delta)
	default:
		return p.Type.String()
	}
}

func (p Policy) validate(name string) error {
	switch p.Type {
	case PolicyNone, PolicyPunctuation:
	case PolicyCount:
		if p.Count <= 0 {
			return fmt.Errorf("%w: %s count must be positive, got %d", ErrInvalidDescriptor, name, p.Count)
		}
	case PolicyTime:
		if p.Period <= 0 {
			return fmt.Errorf("%w: %s period must be positive, got %s", ErrInvalidDescriptor, name, p.Period)
		}
	case PolicyDelta:
		if p.Attribute == "" {
			return fmt.Errorf("%w: %s delta policy requires an attribute", ErrInvalidDescriptor, name)
		}
		if p.Delta < 0 {
			return fmt.Errorf("%w: %s delta must not be negative, got %g", ErrInvalidDescriptor, name, p.Delta)
		}
	default:
		return fmt.Errorf("%w: unknown %s policy type %d", ErrInvalidDescriptor, name, p.Type)
	}
	return nil
}

// PartitionEvictionKind selects how whole partitions are evicted from a partitioned window.
type PartitionEvictionKind int

const (
	// EvictNone never evicts partitions automatically.
	EvictNone PartitionEvictionKind = iota
	// EvictPartitionAge evicts partitions that have not received a tuple for Age.
	EvictPartitionAge
	// EvictPartitionCount evicts the least recently used partitions while there are more than Count.
	EvictPartitionCount
	// EvictTupleCount evicts the least recently used partitions while the window holds more than Count tuples.
	EvictTupleCount
)

func (k PartitionEvictionKind) String() string {
	switch k {
	case EvictNone:
		return "None"
	case EvictPartitionAge:
		return "PartitionAge"
	case EvictPartitionCount:
		return "PartitionCount"
	case EvictTupleCount:
		return "TupleCount"
	default:
		return "Unknown"
	}
}

// PartitionEvictionPolicy is the partition level eviction policy of a partitioned window.
type PartitionEvictionPolicy struct {
	Kind  PartitionEvictionKind
	Age   time.Duration
	Count int
}

func (p PartitionEvictionPolicy) String() string {
	switch p.Kind {
	case EvictPartitionAge:
		return fmt.Sprintf("PartitionAge(%s)", p.Age)
	case EvictPartitionCount:
		return fmt.Sprintf("PartitionCount(%d)", p.Count)
	case EvictTupleCount:
		return fmt.Sprintf("TupleCount(%d)", p.Count)
	default:
		return p.Kind.String()
	}
}

// Descriptor describes the window of an input port. It is immutable once built.
type Descriptor struct {
	kind              Kind
	partitioned       bool
	eviction          Policy
	trigger           Policy
	partitionEviction PartitionEvictionPolicy
}

// NewDescriptor builds and validates a descriptor. The default is a non partitioned tumbling window
// evicted by punctuation.
func NewDescriptor(opts ...Option) (*Descriptor, error) {
	d := &Descriptor{
		kind:     Tumbling,
		eviction: Policy{Type: PolicyPunctuation},
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Kind returns the kind of window.
func (d *Descriptor) Kind() Kind {
	return d.kind
}

// Partitioned reports whether tuples are split into partitions by a Partitioner.
func (d *Descriptor) Partitioned() bool {
	return d.partitioned
}

// Eviction returns the tuple eviction policy.
func (d *Descriptor) Eviction() Policy {
	return d.eviction
}

// Trigger returns the trigger policy, only set for sliding windows.
func (d *Descriptor) Trigger() Policy {
	return d.trigger
}

// PartitionEviction returns the partition eviction policy.
func (d *Descriptor) PartitionEviction() PartitionEvictionPolicy {
	return d.partitionEviction
}

func (d *Descriptor) String() string {
	s := fmt.Sprintf("%s{partitioned: %t, eviction: %s", d.kind, d.partitioned, d.eviction)
	if d.kind == Sliding {
		s += fmt.Sprintf(", trigger: %s", d.trigger)
	}
	if d.partitioned {
		s += fmt.Sprintf(", partitionEviction: %s", d.partitionEviction)
	}
	return s + "}"
}

// Validate checks the combination of kind, policies and partitioning.
func (d *Descriptor) Validate() error {
	switch d.kind {
	case NotWindowed:
		if d.partitioned {
			return fmt.Errorf("%w: a port that is not windowed cannot be partitioned", ErrInvalidDescriptor)
		}
		return nil
	case Tumbling:
		if d.trigger.Type != PolicyNone {
			return fmt.Errorf("%w: tumbling windows do not have a trigger policy", ErrInvalidDescriptor)
		}
		if d.eviction.Type == PolicyNone {
			return fmt.Errorf("%w: tumbling windows require an eviction policy", ErrInvalidDescriptor)
		}
	case Sliding:
		if d.eviction.Type == PolicyNone || d.eviction.Type == PolicyPunctuation {
			return fmt.Errorf("%w: sliding windows require a count, time or delta eviction policy", ErrInvalidDescriptor)
		}
		if d.trigger.Type == PolicyNone || d.trigger.Type == PolicyPunctuation {
			return fmt.Errorf("%w: sliding windows require a count, time or delta trigger policy", ErrInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: unknown window kind %d", ErrInvalidDescriptor, d.kind)
	}
	if err := d.eviction.validate("eviction"); err != nil {
		return err
	}
	if err := d.trigger.validate("trigger"); err != nil {
		return err
	}
	pe := d.partitionEviction
	if pe.Kind != EvictNone && !d.partitioned {
		return fmt.Errorf("%w: partition eviction %s requires a partitioned window", ErrInvalidDescriptor, pe)
	}
	switch pe.Kind {
	case EvictNone:
	case EvictPartitionAge:
		if pe.Age <= 0 {
			return fmt.Errorf("%w: partition age must be positive, got %s", ErrInvalidDescriptor, pe.Age)
		}
	case EvictPartitionCount, EvictTupleCount:
		if pe.Count <= 0 {
			return fmt.Errorf("%w: %s count must be positive, got %d", ErrInvalidDescriptor, pe.Kind, pe.Count)
		}
	default:
		return fmt.Errorf("%w: unknown partition eviction kind %d", ErrInvalidDescriptor, pe.Kind)
	}
	return nil
}
