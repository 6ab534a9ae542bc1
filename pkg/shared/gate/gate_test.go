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

package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGate_EnterLeave(t *testing.T) {
	g := New()
	assert.True(t, g.Enter())
	assert.True(t, g.Enter())
	assert.Equal(t, 2, g.InFlight())
	g.Leave()
	g.Leave()
	assert.Equal(t, 0, g.InFlight())
	assert.Panics(t, func() { g.Leave() })
}

func TestGate_RefuseAfterSeal(t *testing.T) {
	g := New()
	assert.False(t, g.Sealed())
	g.Seal()
	g.Seal()
	assert.True(t, g.Sealed())
	assert.False(t, g.Enter())
	assert.Equal(t, 0, g.InFlight())
}

func TestGate_WaitForInFlight(t *testing.T) {
	g := New()
	var finished []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		assert.True(t, g.Enter())
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer g.Leave()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			finished = append(finished, i)
			mu.Unlock()
		}(i)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, g.SealAndWait(ctx))
	mu.Lock()
	assert.Len(t, finished, 5)
	mu.Unlock()
	assert.False(t, g.Enter())
	wg.Wait()
}

func TestGate_WaitNothingInFlight(t *testing.T) {
	g := New()
	assert.NoError(t, g.Wait(context.Background()))
}

func TestGate_WaitCancelled(t *testing.T) {
	g := New()
	assert.True(t, g.Enter())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.SealAndWait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
	g.Leave()
	assert.NoError(t, g.Wait(context.Background()))
}
