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
	"fmt"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window/slot"
)

// Encode writes the partition record: key, policy state, slot count and then every slot as a presence
// byte followed by the encoded tuple when present.
func (p *Partition) Encode(enc *checkpoint.Encoder) error {
	if err := enc.WriteString(p.key); err != nil {
		return err
	}
	state, err := p.policy.MarshalState()
	if err != nil {
		return fmt.Errorf("failed to marshal policy state of partition %q: %w", p.key, err)
	}
	if err := enc.WriteBytes(state); err != nil {
		return err
	}
	if err := enc.WriteInt32(int32(len(p.slots))); err != nil {
		return err
	}
	for _, s := range p.slots {
		t := s.Tuple()
		if err := enc.WriteBool(t != nil); err != nil {
			return err
		}
		if t == nil {
			continue
		}
		b, err := t.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal tuple of partition %q: %w", p.key, err)
		}
		if err := enc.WriteBytes(b); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a partition record written by Encode. build creates the empty partition for the decoded
// key, with a fresh policy that then receives the decoded policy state.
func Decode(dec *checkpoint.Decoder, build func(key string) (*Partition, error)) (*Partition, error) {
	key, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	state, err := dec.ReadBytes()
	if err != nil {
		return nil, err
	}
	p, err := build(key)
	if err != nil {
		return nil, err
	}
	if err := p.policy.UnmarshalState(state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy state of partition %q: %w", key, err)
	}
	n, err := dec.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("partition %q: %w", key, checkpoint.ErrNegativeLength)
	}
	slots := make([]*slot.Slot, 0, min(int(n), 1024))
	for i := int32(0); i < n; i++ {
		present, err := dec.ReadBool()
		if err != nil {
			return nil, err
		}
		if !present {
			// released slots keep their position
			slots = append(slots, slot.New(nil))
			continue
		}
		b, err := dec.ReadBytes()
		if err != nil {
			return nil, err
		}
		t := &tuple.Tuple{}
		if err := t.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("partition %q slot %d: %w", key, i, err)
		}
		slots = append(slots, slot.New(t))
	}
	p.slots = slots
	return p, nil
}
