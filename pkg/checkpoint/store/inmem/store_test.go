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

package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/numawindow/pkg/checkpoint/store/storetest"
)

func TestInMemStore(t *testing.T) {
	s := NewStore(context.Background(), "test")
	storetest.Run(t, s)
	assert.Equal(t, "test", s.Name())
	assert.NoError(t, s.Close())
	assert.Error(t, s.Put(context.Background(), "k", []byte("v")))
}
