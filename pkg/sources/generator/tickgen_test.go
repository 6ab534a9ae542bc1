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

package generator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/numawindow/pkg/tuple"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type port struct {
	mu     sync.Mutex
	tuples []*tuple.Tuple
	marks  []tuple.Punctuation
}

func (p *port) Tuple(_ context.Context, t *tuple.Tuple) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tuples = append(p.tuples, t)
	return nil
}

func (p *port) Mark(_ context.Context, punct tuple.Punctuation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = append(p.marks, punct)
	return nil
}

func (p *port) Action(context.Context, tuple.Action) error {
	return nil
}

func (p *port) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tuples)
}

func TestMemGen_Limit(t *testing.T) {
	mock := clock.NewMock()
	src, err := NewMemGen(context.Background(), "gen", WithClock(mock), WithRPU(3), WithLimit(7), WithKeyCount(2), WithMarkEvery(2))
	require.NoError(t, err)
	assert.Equal(t, "gen", src.Name())

	p := &port{}
	done := make(chan error)
	go func() { done <- src.Run(context.Background(), p) }()

	for i := 1; i <= 3; i++ {
		// wait for the ticker of the running generator before advancing
		time.Sleep(10 * time.Millisecond)
		mock.Add(time.Second)
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop at its limit")
	}
	require.Len(t, p.tuples, 7)
	assert.Equal(t, []string{"key-0"}, p.tuples[0].Keys)
	assert.Equal(t, []string{"key-1"}, p.tuples[1].Keys)
	assert.Equal(t, mock.Now().Add(-2*time.Second).UnixNano(), p.tuples[0].EventTime.UnixNano())
	assert.Equal(t, []tuple.Punctuation{tuple.WindowMarker}, p.marks)
	ids := make(map[string]bool)
	for _, tp := range p.tuples {
		_, err := uuid.Parse(tp.Headers[IDHeader])
		require.NoError(t, err)
		ids[tp.Headers[IDHeader]] = true
	}
	assert.Len(t, ids, 7)
}

func TestMemGen_Cancel(t *testing.T) {
	mock := clock.NewMock()
	src, err := NewMemGen(context.Background(), "gen", WithClock(mock), WithRPU(1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	p := &port{}
	done := make(chan error)
	go func() { done <- src.Run(ctx, p) }()
	time.Sleep(10 * time.Millisecond)
	mock.Add(time.Second)
	assert.Eventually(t, func() bool { return p.count() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestInvalidOptions(t *testing.T) {
	_, err := NewMemGen(context.Background(), "gen", WithRPU(0))
	assert.Error(t, err)
	_, err = NewMemGen(context.Background(), "gen", WithTimeUnit(-time.Second))
	assert.Error(t, err)
}

func TestTimeParsing(t *testing.T) {
	rbytes := recordGenerator(8, 1, time.Now().UnixNano())
	parsedtime := parseTime(rbytes)
	assert.True(t, parsedtime > 0)
}

func TestUnparseableTime(t *testing.T) {
	rbytes := []byte("this is unparseable as json")
	parsedtime := parseTime(rbytes)
	assert.True(t, parsedtime == 0)
}

func TestTimeForValidTime(t *testing.T) {
	nanotime := time.Now().UnixNano()
	parsedtime := timeFromNanos(nanotime)
	assert.Equal(t, nanotime, parsedtime.UnixNano())
}

func TestTimeForInvalidTime(t *testing.T) {
	nanotime := int64(-1)
	parsedtime := timeFromNanos(nanotime)
	assert.True(t, parsedtime.UnixNano() > 0)
}
