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

// Package generator implements a source that generates tuples on a ticker, used to drive windows without
// an external system.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/shared/logging"
	"github.com/numaproj/numawindow/pkg/sources"
	"github.com/numaproj/numawindow/pkg/tuple"
)

// IDHeader is the tuple header holding the unique id of a generated record.
const IDHeader = "x-generator-id"

// Data is the payload body of a generated record.
type Data struct {
	Value int64 `json:"value,omitempty"`
	// padding makes the record reach the configured size
	Padding []byte `json:"padding,omitempty"`
}

// record is the payload of a generated tuple.
type record struct {
	Data      Data
	Createdts int64
}

type options struct {
	// rpu is the number of records per tick
	rpu int
	// timeunit is the tick period
	timeunit time.Duration
	// msgSize is the padding size of a record
	msgSize int
	// keyCount is the number of distinct tuple keys, keys are not set when it is 0
	keyCount int
	// limit stops the generator after that many records, 0 is unlimited
	limit int64
	// markEvery sends a window marker every markEvery ticks, 0 never
	markEvery int
	clock     clock.Clock
}

// Option configures the generator.
type Option func(*options) error

// WithRPU sets the records per tick.
func WithRPU(rpu int) Option {
	return func(o *options) error {
		if rpu <= 0 {
			return fmt.Errorf("records per tick must be positive, got %d", rpu)
		}
		o.rpu = rpu
		return nil
	}
}

// WithTimeUnit sets the tick period.
func WithTimeUnit(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("tick period must be positive, got %s", d)
		}
		o.timeunit = d
		return nil
	}
}

// WithMsgSize sets the padding of every record.
func WithMsgSize(n int) Option {
	return func(o *options) error {
		o.msgSize = n
		return nil
	}
}

// WithKeyCount sets the number of distinct keys, assigned round robin.
func WithKeyCount(n int) Option {
	return func(o *options) error {
		o.keyCount = n
		return nil
	}
}

// WithLimit stops the generator after n records.
func WithLimit(n int64) Option {
	return func(o *options) error {
		o.limit = n
		return nil
	}
}

// WithMarkEvery sends a window marker after every n ticks.
func WithMarkEvery(n int) Option {
	return func(o *options) error {
		o.markEvery = n
		return nil
	}
}

// WithClock sets the clock driving the ticker.
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

type memgen struct {
	name string
	opts *options
	log  *zap.SugaredLogger
}

var _ sources.Source = (*memgen)(nil)

// NewMemGen returns a generator source.
func NewMemGen(ctx context.Context, name string, opts ...Option) (sources.Source, error) {
	o := &options{
		rpu:      5,
		timeunit: time.Second,
		msgSize:  8,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &memgen{name: name, opts: o, log: logging.FromContext(ctx).With("source", name)}, nil
}

func (mg *memgen) Name() string {
	return mg.name
}

// Run emits rpu records on every tick until the limit is reached or ctx is done.
func (mg *memgen) Run(ctx context.Context, port sources.Port) error {
	ticker := mg.opts.clock.Ticker(mg.opts.timeunit)
	defer ticker.Stop()
	var n int64
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		ticks++
		tickgenSourceCount.WithLabelValues(mg.name).Inc()
		for i := 0; i < mg.opts.rpu; i++ {
			if mg.opts.limit > 0 && n >= mg.opts.limit {
				mg.log.Infow("Generator reached its limit", zap.Int64("records", n))
				return nil
			}
			t := mg.newTuple(n)
			if err := port.Tuple(ctx, t); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				mg.log.Warnw("Generated tuple rejected", zap.Int64("value", n), zap.Error(err))
			}
			tickgenSourceReadCount.WithLabelValues(mg.name).Inc()
			n++
		}
		if mg.opts.markEvery > 0 && ticks%mg.opts.markEvery == 0 {
			if err := port.Mark(ctx, tuple.WindowMarker); err != nil && ctx.Err() == nil {
				mg.log.Warnw("Window marker rejected", zap.Error(err))
			}
		}
	}
}

func (mg *memgen) newTuple(n int64) *tuple.Tuple {
	now := mg.opts.clock.Now()
	payload := recordGenerator(mg.opts.msgSize, n, now.UnixNano())
	t := tuple.New(timeFromNanos(parseTime(payload)), payload)
	t.Headers = map[string]string{IDHeader: uuid.NewString()}
	if mg.opts.keyCount > 0 {
		t.Keys = []string{fmt.Sprintf("key-%d", n%int64(mg.opts.keyCount))}
	}
	return t
}

func recordGenerator(size int, value int64, createdTS int64) []byte {
	r := record{Data: Data{Value: value}, Createdts: createdTS}
	if size > 0 {
		r.Data.Padding = make([]byte, size)
	}
	data, err := json.Marshal(r)
	if err != nil {
		// a record of plain values always marshals
		panic(err)
	}
	return data
}

// parseTime returns the creation time of a generated record, 0 if it is not one.
func parseTime(payload []byte) int64 {
	var r record
	if err := json.Unmarshal(payload, &r); err != nil {
		return 0
	}
	return r.Createdts
}

// timeFromNanos returns the event time of a record, the current time for an invalid creation time.
func timeFromNanos(etime int64) time.Time {
	if etime > 0 {
		return time.Unix(0, etime)
	}
	return time.Now()
}
