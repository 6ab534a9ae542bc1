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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numawindow/pkg/shared/logging"
)

// DefaultPutBackoff retries a failing store put for about a minute.
var DefaultPutBackoff = wait.Backoff{
	Steps:    6,
	Duration: time.Second,
	Factor:   2.0,
	Jitter:   0.1,
}

// Periodic checkpoints a Stateful component into a store on a cron schedule.
type Periodic struct {
	state   Stateful
	store   Store
	key     string
	backoff wait.Backoff
	cron    *cron.Cron
	log     *zap.SugaredLogger
}

// PeriodicOption configures a Periodic.
type PeriodicOption func(*Periodic)

// WithPutBackoff sets the retry backoff of store puts.
func WithPutBackoff(b wait.Backoff) PeriodicOption {
	return func(p *Periodic) {
		p.backoff = b
	}
}

// NewPeriodic returns a checkpointer writing the state to key of store on schedule, a cron expression with
// seconds, e.g. "@every 30s" or "0 */5 * * * *".
func NewPeriodic(ctx context.Context, schedule string, state Stateful, store Store, key string, opts ...PeriodicOption) (*Periodic, error) {
	p := &Periodic{
		state:   state,
		store:   store,
		key:     key,
		backoff: DefaultPutBackoff,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     logging.FromContext(ctx).With("checkpoint", key),
	}
	for _, opt := range opts {
		opt(p)
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		if err := p.CheckpointNow(ctx); err != nil {
			p.log.Errorw("Periodic checkpoint failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid checkpoint schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start starts checkpointing on schedule.
func (p *Periodic) Start() {
	p.cron.Start()
}

// Stop stops the schedule and waits for a running checkpoint to complete.
func (p *Periodic) Stop() {
	<-p.cron.Stop().Done()
}

// CheckpointNow writes a checkpoint, retrying the store put with backoff.
func (p *Periodic) CheckpointNow(ctx context.Context) error {
	var buf bytes.Buffer
	if err := p.state.Checkpoint(ctx, &buf); err != nil {
		return fmt.Errorf("failed to checkpoint %s: %w", p.key, err)
	}
	data := buf.Bytes()
	attempt := 0
	var lastErr error
	err := wait.ExponentialBackoff(p.backoff, func() (done bool, err error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		attempt++
		if lastErr = p.store.Put(ctx, p.key, data); lastErr != nil {
			p.log.Warnw("Failed to store checkpoint, retrying", zap.Int("attempt", attempt), zap.Error(lastErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return fmt.Errorf("failed to store checkpoint %s after %d attempts: %w", p.key, attempt, err)
	}
	p.log.Infow("Stored checkpoint", zap.Int("bytes", len(data)), zap.String("store", p.store.Name()))
	return nil
}

// Restore resets the state from the stored checkpoint. It returns false without error when nothing has been
// checkpointed yet.
func (p *Periodic) Restore(ctx context.Context) (bool, error) {
	data, err := p.store.Get(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := p.state.Reset(ctx, bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", p.key, err)
	}
	p.log.Infow("Restored checkpoint", zap.Int("bytes", len(data)))
	return true, nil
}
