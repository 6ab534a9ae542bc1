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

// Package gate provides a sealable admission gate that counts in-flight work.
//
// Work calls Enter before starting and Leave when done. Seal closes the gate to
// new work permanently, and Wait blocks until every admitted unit has left. A unit
// admitted before Seal is always waited for; a unit arriving after Seal is refused.
package gate

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Gate is a sealed flag plus a counted barrier. The zero value is not usable, use New.
type Gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inflight int
	sealed   *atomic.Bool
}

// New returns an open gate.
func New() *Gate {
	g := &Gate{sealed: atomic.NewBool(false)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enter admits one unit of work. It returns false once the gate is sealed, in which
// case the caller must not do the work and must not call Leave.
func (g *Gate) Enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed.Load() {
		return false
	}
	g.inflight++
	return true
}

// Leave marks one admitted unit as finished.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == 0 {
		panic("gate: Leave called without a matching Enter")
	}
	g.inflight--
	if g.inflight == 0 {
		g.cond.Broadcast()
	}
}

// Seal closes the gate. It is idempotent.
func (g *Gate) Seal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sealed.Store(true)
}

// Sealed reports whether Seal has been called. It never blocks.
func (g *Gate) Sealed() bool {
	return g.sealed.Load()
}

// InFlight returns the number of admitted units that have not left yet.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

// Wait blocks until no admitted unit is in flight or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.mu.Lock()
		defer g.mu.Unlock()
		for g.inflight != 0 && ctx.Err() == nil {
			g.cond.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// wake the waiter so it can observe the cancelled context and exit
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// SealAndWait seals the gate and waits for in-flight work to drain.
func (g *Gate) SealAndWait(ctx context.Context) error {
	g.Seal()
	return g.Wait(ctx)
}
