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

// Package tuple defines the data items and punctuation that flow through an
// operator's input ports.
package tuple

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"time"

	"github.com/numaproj/numawindow/pkg/checkpoint"
)

// ErrChecksum is returned when a decoded payload does not match its checksum.
var ErrChecksum = errors.New("tuple payload checksum mismatch")

// Tuple is a single data item arriving on an input port.
type Tuple struct {
	EventTime time.Time
	Keys      []string
	Headers   map[string]string
	Payload   []byte
}

// New returns a tuple with the given payload and keys.
func New(eventTime time.Time, payload []byte, keys ...string) *Tuple {
	return &Tuple{EventTime: eventTime, Payload: payload, Keys: keys}
}

func (t *Tuple) String() string {
	return fmt.Sprintf("Tuple{EventTime: %d, Keys: %v, Payload: %q}", t.EventTime.UnixMilli(), t.Keys, t.Payload)
}

// headerPreamble is the fixed size part of an encoded tuple.
type headerPreamble struct {
	EventTime   int64
	PayloadLen  int32
	KeyCount    int16
	HeaderCount int16
	Checksum    uint32
}

// MarshalBinary encodes the tuple as a fixed header followed by keys, headers and payload.
func (t *Tuple) MarshalBinary() ([]byte, error) {
	if len(t.Keys) > 1<<15-1 || len(t.Headers) > 1<<15-1 {
		return nil, fmt.Errorf("too many keys (%d) or headers (%d) to encode", len(t.Keys), len(t.Headers))
	}
	buf := new(bytes.Buffer)
	hp := headerPreamble{
		PayloadLen:  int32(len(t.Payload)),
		KeyCount:    int16(len(t.Keys)),
		HeaderCount: int16(len(t.Headers)),
		Checksum:    crc32.ChecksumIEEE(t.Payload),
	}
	if !t.EventTime.IsZero() {
		hp.EventTime = t.EventTime.UnixNano()
	}
	// write the fixed values
	if err := binary.Write(buf, binary.BigEndian, hp); err != nil {
		return nil, err
	}
	enc := checkpoint.NewEncoder(buf)
	for _, k := range t.Keys {
		if err := enc.WriteString(k); err != nil {
			return nil, err
		}
	}
	// headers are written in key order so equal tuples encode to equal bytes
	names := make([]string, 0, len(t.Headers))
	for name := range t.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := enc.WriteString(name); err != nil {
			return nil, err
		}
		if err := enc.WriteString(t.Headers[name]); err != nil {
			return nil, err
		}
	}
	if _, err := buf.Write(t.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a tuple written by MarshalBinary.
func (t *Tuple) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var hp headerPreamble
	if err := binary.Read(r, binary.BigEndian, &hp); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if hp.PayloadLen < 0 || hp.KeyCount < 0 || hp.HeaderCount < 0 {
		return fmt.Errorf("corrupt tuple header %+v", hp)
	}
	dec := checkpoint.NewDecoder(r)
	var keys []string
	if hp.KeyCount > 0 {
		keys = make([]string, hp.KeyCount)
		for i := range keys {
			k, err := dec.ReadString()
			if err != nil {
				return err
			}
			keys[i] = k
		}
	}
	var headers map[string]string
	if hp.HeaderCount > 0 {
		headers = make(map[string]string, hp.HeaderCount)
		for i := 0; i < int(hp.HeaderCount); i++ {
			name, err := dec.ReadString()
			if err != nil {
				return err
			}
			value, err := dec.ReadString()
			if err != nil {
				return err
			}
			headers[name] = value
		}
	}
	payload := make([]byte, hp.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return io.ErrUnexpectedEOF
	}
	if crc32.ChecksumIEEE(payload) != hp.Checksum {
		return ErrChecksum
	}
	if hp.EventTime != 0 {
		t.EventTime = time.Unix(0, hp.EventTime)
	} else {
		t.EventTime = time.Time{}
	}
	t.Keys = keys
	t.Headers = headers
	t.Payload = payload
	return nil
}
