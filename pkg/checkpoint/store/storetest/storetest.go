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

// Package storetest holds the behavior every checkpoint store must have, shared by the store tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numawindow/pkg/checkpoint"
)

// Run exercises s, which must be empty.
func Run(t *testing.T, s checkpoint.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	data := []byte{0, 1, 2, 0xff}
	require.NoError(t, s.Put(ctx, "op/in", data))
	data[0] = 9
	got, err := s.Get(ctx, "op/in")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 0xff}, got)

	require.NoError(t, s.Put(ctx, "op/in", []byte("v2")))
	got, err = s.Get(ctx, "op/in")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Put(ctx, "a", nil))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "op/in"}, keys)

	require.NoError(t, s.Delete(ctx, "op/in"))
	require.NoError(t, s.Delete(ctx, "op/in"))
	_, err = s.Get(ctx, "op/in")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}
