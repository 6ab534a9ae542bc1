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

import "time"

// Option configures a Descriptor built by NewDescriptor.
type Option func(*Descriptor) error

// WithKind sets the window kind.
func WithKind(k Kind) Option {
	return func(d *Descriptor) error {
		d.kind = k
		return nil
	}
}

// WithPartitioned marks the window as partitioned.
func WithPartitioned(partitioned bool) Option {
	return func(d *Descriptor) error {
		d.partitioned = partitioned
		return nil
	}
}

// WithEviction sets the tuple eviction policy.
func WithEviction(p Policy) Option {
	return func(d *Descriptor) error {
		d.eviction = p
		return nil
	}
}

// WithTrigger sets the trigger policy of a sliding window.
func WithTrigger(p Policy) Option {
	return func(d *Descriptor) error {
		d.trigger = p
		return nil
	}
}

// WithPartitionAge evicts partitions that have not received a tuple for age.
func WithPartitionAge(age time.Duration) Option {
	return func(d *Descriptor) error {
		d.partitionEviction = PartitionEvictionPolicy{Kind: EvictPartitionAge, Age: age}
		return nil
	}
}

// WithPartitionCount keeps at most n partitions.
func WithPartitionCount(n int) Option {
	return func(d *Descriptor) error {
		d.partitionEviction = PartitionEvictionPolicy{Kind: EvictPartitionCount, Count: n}
		return nil
	}
}

// WithTupleCount keeps at most n tuples across all partitions.
func WithTupleCount(n int) Option {
	return func(d *Descriptor) error {
		d.partitionEviction = PartitionEvictionPolicy{Kind: EvictTupleCount, Count: n}
		return nil
	}
}

// CountPolicy returns a count based policy of size n.
func CountPolicy(n int) Policy {
	return Policy{Type: PolicyCount, Count: n}
}

// TimePolicy returns a time based policy with the given period.
func TimePolicy(period time.Duration) Policy {
	return Policy{Type: PolicyTime, Period: period}
}

// DeltaPolicy returns a delta based policy on attribute.
func DeltaPolicy(attribute string, delta float64) Policy {
	return Policy{Type: PolicyDelta, Attribute: attribute, Delta: delta}
}

// PunctuationPolicy returns a punctuation based policy.
func PunctuationPolicy() Policy {
	return Policy{Type: PolicyPunctuation}
}
