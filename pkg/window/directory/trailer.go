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

package directory

import (
	"errors"
	"fmt"
	"time"

	"github.com/numaproj/numawindow/pkg/checkpoint"
)

const (
	entryKey    byte = 0
	entryMarker byte = 1
)

// ErrCorruptTrailer is returned when a checkpoint trailer does not match the restored partitions.
var ErrCorruptTrailer = errors.New("corrupt directory trailer in checkpoint")

// WriteTrailer writes the mode specific state following the partition records. The LRU modes write the
// order list as an int32 entry count followed by a tag byte and either the key or the marker placement
// time in unix nanoseconds per entry. LRUTupleCount then writes the tuple count as an int64. Fixed and
// Dynamic write nothing.
func (d *Directory) WriteTrailer(enc *checkpoint.Encoder) error {
	if d.order == nil {
		return nil
	}
	entries := d.order.Keys()
	if err := enc.WriteInt32(int32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if e.isMarker() {
			placed, _ := d.order.Peek(e)
			if err := enc.WriteByte(entryMarker); err != nil {
				return err
			}
			if err := enc.WriteInt64(placed.UnixNano()); err != nil {
				return err
			}
			continue
		}
		if err := enc.WriteByte(entryKey); err != nil {
			return err
		}
		if err := enc.WriteString(e.key); err != nil {
			return err
		}
	}
	if d.mode == LRUTupleCount {
		return enc.WriteInt64(d.tuples.Load())
	}
	return nil
}

// ReadTrailer reads the state written by WriteTrailer, after every partition has been restored.
func (d *Directory) ReadTrailer(dec *checkpoint.Decoder) error {
	if d.order == nil {
		return nil
	}
	n, err := dec.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		return checkpoint.ErrNegativeLength
	}
	d.order.Purge()
	d.markers = 0
	for i := int32(0); i < n; i++ {
		tag, err := dec.ReadByte()
		if err != nil {
			return err
		}
		switch tag {
		case entryKey:
			key, err := dec.ReadString()
			if err != nil {
				return err
			}
			if _, ok := d.partitions[key]; !ok {
				return fmt.Errorf("%w: unknown partition %q in order list", ErrCorruptTrailer, key)
			}
			if d.order.Contains(lruEntry{key: key}) {
				return fmt.Errorf("%w: partition %q listed twice", ErrCorruptTrailer, key)
			}
			d.order.Add(lruEntry{key: key}, time.Time{})
		case entryMarker:
			nanos, err := dec.ReadInt64()
			if err != nil {
				return err
			}
			d.lastMarker++
			d.order.Add(lruEntry{marker: d.lastMarker}, time.Unix(0, nanos))
			d.markers++
		default:
			return fmt.Errorf("%w: unknown entry tag %d", ErrCorruptTrailer, tag)
		}
	}
	if keys := d.order.Len() - d.markers; keys != len(d.partitions) {
		return fmt.Errorf("%w: order list holds %d partitions, checkpoint holds %d", ErrCorruptTrailer, keys, len(d.partitions))
	}
	if d.mode == LRUTupleCount {
		total, err := dec.ReadInt64()
		if err != nil {
			return err
		}
		if total != d.tuples.Load() {
			return fmt.Errorf("%w: tuple count %d does not match the %d restored tuples", ErrCorruptTrailer, total, d.tuples.Load())
		}
	}
	return nil
}
