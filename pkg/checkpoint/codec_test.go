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

package checkpoint

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	require.NoError(t, enc.WriteByte(7))
	require.NoError(t, enc.WriteBool(true))
	require.NoError(t, enc.WriteInt16(-3))
	require.NoError(t, enc.WriteInt32(1<<20))
	require.NoError(t, enc.WriteUint32(0xdeadbeef))
	require.NoError(t, enc.WriteInt64(-1))
	require.NoError(t, enc.WriteBytes(nil))
	require.NoError(t, enc.WriteString("key"))

	// big-endian on the wire
	assert.Equal(t, []byte{7, 1, 0xff, 0xfd, 0, 0x10, 0, 0}, buf.Bytes()[:8])

	dec := NewDecoder(bytes.NewReader(buf.Bytes()))
	b, err := dec.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)
	ok, err := dec.ReadBool()
	require.NoError(t, err)
	assert.True(t, ok)
	i16, err := dec.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(-3), i16)
	i32, err := dec.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(1<<20), i32)
	u32, err := dec.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	i64, err := dec.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i64)
	bs, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.Empty(t, bs)
	s, err := dec.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "key", s)

	_, err = dec.ReadByte()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCodec_Corrupt(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	require.NoError(t, enc.WriteInt32(-1))
	_, err := NewDecoder(bytes.NewReader(buf.Bytes())).ReadBytes()
	assert.ErrorIs(t, err, ErrNegativeLength)

	buf.Reset()
	require.NoError(t, enc.WriteString("abcdef"))
	_, err = NewDecoder(bytes.NewReader(buf.Bytes()[:6])).ReadString()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewDecoder(bytes.NewReader([]byte{2})).ReadBool()
	assert.Error(t, err)
}
