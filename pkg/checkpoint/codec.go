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

// Package checkpoint holds the binary encoding shared by every piece of window
// state that is persisted, the Stateful contract, checkpoint stores and the
// periodic checkpointer.
//
// All integers are written big-endian. Strings and byte slices are written as an
// int32 length followed by the raw bytes, so a truncated stream always fails with
// io.ErrUnexpectedEOF rather than decoding garbage.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrNegativeLength is returned when a length prefix is negative.
var ErrNegativeLength = errors.New("negative length prefix in checkpoint stream")

// Encoder writes checkpoint primitives to an io.Writer.
type Encoder struct {
	w   io.Writer
	buf [8]byte
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) write(b []byte) error {
	n, err := e.w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("expected to write %d, but wrote only %d: %w", len(b), n, io.ErrShortWrite)
	}
	return nil
}

// WriteByte writes a single byte.
func (e *Encoder) WriteByte(v byte) error {
	e.buf[0] = v
	return e.write(e.buf[:1])
}

// WriteBool writes a bool as one byte.
func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// WriteInt16 writes an int16.
func (e *Encoder) WriteInt16(v int16) error {
	binary.BigEndian.PutUint16(e.buf[:2], uint16(v))
	return e.write(e.buf[:2])
}

// WriteInt32 writes an int32.
func (e *Encoder) WriteInt32(v int32) error {
	binary.BigEndian.PutUint32(e.buf[:4], uint32(v))
	return e.write(e.buf[:4])
}

// WriteUint32 writes a uint32.
func (e *Encoder) WriteUint32(v uint32) error {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	return e.write(e.buf[:4])
}

// WriteInt64 writes an int64.
func (e *Encoder) WriteInt64(v int64) error {
	binary.BigEndian.PutUint64(e.buf[:8], uint64(v))
	return e.write(e.buf[:8])
}

// WriteBytes writes an int32 length followed by b.
func (e *Encoder) WriteBytes(b []byte) error {
	if len(b) > math.MaxInt32 {
		return fmt.Errorf("byte slice of %d bytes is too large for a checkpoint", len(b))
	}
	if err := e.WriteInt32(int32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return e.write(b)
}

// WriteString writes s the same way as WriteBytes.
func (e *Encoder) WriteString(s string) error {
	return e.WriteBytes([]byte(s))
}

// Decoder reads checkpoint primitives from an io.Reader.
type Decoder struct {
	r   io.Reader
	buf [8]byte
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) read(b []byte) error {
	_, err := io.ReadFull(d.r, b)
	if errors.Is(err, io.EOF) {
		// a clean EOF in the middle of a record is still a truncated checkpoint
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if err := d.read(d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

// ReadBool reads a bool written by WriteBool.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %d in checkpoint stream", b)
	}
}

// ReadInt16 reads an int16.
func (d *Decoder) ReadInt16() (int16, error) {
	if err := d.read(d.buf[:2]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(d.buf[:2])), nil
}

// ReadInt32 reads an int32.
func (d *Decoder) ReadInt32() (int32, error) {
	if err := d.read(d.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(d.buf[:4])), nil
}

// ReadUint32 reads a uint32.
func (d *Decoder) ReadUint32() (uint32, error) {
	if err := d.read(d.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d.buf[:4]), nil
}

// ReadInt64 reads an int64.
func (d *Decoder) ReadInt64() (int64, error) {
	if err := d.read(d.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(d.buf[:8])), nil
}

// ReadBytes reads a length prefixed byte slice.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if n == 0 {
		return []byte{}, nil
	}
	b := make([]byte, n)
	if err := d.read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadString reads a length prefixed string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
