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

// Package operator hosts the windows of an operator. The Operator owns the scheduler running the
// background work of its windows, collects background errors, tells the windows when all ports are ready
// and checkpoints and restores every windowed input port together.
package operator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/shared/logging"
	"github.com/numaproj/numawindow/pkg/sources"
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/controller"
	"github.com/numaproj/numawindow/pkg/window/pipeline"
	"github.com/numaproj/numawindow/pkg/window/scheduler"
)

var (
	// ErrPortsReady is returned when a port is added after all ports were declared ready.
	ErrPortsReady = errors.New("all ports are already ready")
	// ErrUnknownPort is returned for a port name the operator does not have.
	ErrUnknownPort = errors.New("unknown port")
	// ErrNotReady is reported by IsHealthy until all ports are ready.
	ErrNotReady = errors.New("ports are not ready")
	// ErrClosed is reported by IsHealthy once the operator is closed.
	ErrClosed = errors.New("operator is closed")
)

// PortConfig describes a windowed input port.
type PortConfig struct {
	Name        string
	Descriptor  *window.Descriptor
	Partitioner window.Partitioner
	Listener    window.Listener
	Forwarder   pipeline.Forwarder
	Options     []controller.Option
}

// Operator hosts windowed input ports.
type Operator struct {
	name  string
	sched *scheduler.ClockScheduler
	errCh chan error
	log   *zap.SugaredLogger

	lock     sync.Mutex
	ports    map[string]*pipeline.Pipeline
	ready    bool
	onReady  []func()
	dropped  error
	isClosed bool
}

var _ controller.Adapter = (*Operator)(nil)
var _ checkpoint.Stateful = (*Operator)(nil)

// New returns an operator. Its scheduler stops when ctx is done or the operator is closed.
func New(ctx context.Context, name string, opts ...Option) *Operator {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Operator{
		name:  name,
		sched: scheduler.New(ctx, scheduler.WithClock(o.clock)),
		errCh: make(chan error, o.errorBuffer),
		log:   logging.FromContext(ctx).With("operator", name),
		ports: make(map[string]*pipeline.Pipeline),
	}
}

// Name returns the operator name.
func (o *Operator) Name() string {
	return o.name
}

// Scheduler returns the scheduler running the background work of every window.
func (o *Operator) Scheduler() scheduler.Scheduler {
	return o.sched
}

// BackgroundError delivers err on the Errors channel. When the channel is full the error is kept and
// returned by Close.
func (o *Operator) BackgroundError(err error) {
	select {
	case o.errCh <- err:
	default:
		droppedErrors.WithLabelValues(o.name).Inc()
		o.log.Errorw("Background error channel is full", zap.Error(err))
		o.lock.Lock()
		o.dropped = multierr.Append(o.dropped, err)
		o.lock.Unlock()
	}
}

// Errors returns the channel of background errors.
func (o *Operator) Errors() <-chan error {
	return o.errCh
}

// OnAllPortsReady registers fn to run once all ports are ready, or runs it now if they already are.
func (o *Operator) OnAllPortsReady(fn func()) {
	o.lock.Lock()
	if !o.ready {
		o.onReady = append(o.onReady, fn)
		o.lock.Unlock()
		return
	}
	o.lock.Unlock()
	fn()
}

// AllPortsReady declares that every port has been added, activating the partitions of every window.
func (o *Operator) AllPortsReady() {
	o.lock.Lock()
	if o.ready {
		o.lock.Unlock()
		return
	}
	o.ready = true
	fns := o.onReady
	o.onReady = nil
	o.lock.Unlock()
	o.log.Infow("All ports ready", zap.Int("ports", len(fns)))
	for _, fn := range fns {
		fn()
	}
}

// AddPort creates the window of a port and returns its pipeline.
func (o *Operator) AddPort(ctx context.Context, cfg PortConfig) (*pipeline.Pipeline, error) {
	o.lock.Lock()
	if o.ready {
		o.lock.Unlock()
		return nil, fmt.Errorf("failed to add port %s: %w", cfg.Name, ErrPortsReady)
	}
	if _, ok := o.ports[cfg.Name]; ok {
		o.lock.Unlock()
		return nil, fmt.Errorf("duplicate port %s", cfg.Name)
	}
	o.lock.Unlock()

	opts := append([]controller.Option{controller.WithName(o.name + "/" + cfg.Name)}, cfg.Options...)
	c, err := controller.New(ctx, cfg.Descriptor, o, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create window of port %s: %w", cfg.Name, err)
	}
	c.RegisterListener(cfg.Listener)
	if cfg.Descriptor.Partitioned() {
		partitioner := cfg.Partitioner
		if partitioner == nil {
			partitioner = window.KeysPartitioner()
		}
		if err := c.RegisterPartitioner(partitioner); err != nil {
			return nil, err
		}
	}
	p := pipeline.New(ctx, cfg.Name, c, cfg.Forwarder)

	o.lock.Lock()
	defer o.lock.Unlock()
	o.ports[cfg.Name] = p
	operatorPorts.WithLabelValues(o.name).Set(float64(len(o.ports)))
	return p, nil
}

// Port returns the pipeline of a port.
func (o *Operator) Port(name string) (*pipeline.Pipeline, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	p, ok := o.ports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPort, name)
	}
	return p, nil
}

// Ports returns the pipelines of every port ordered by port name.
func (o *Operator) Ports() []*pipeline.Pipeline {
	o.lock.Lock()
	defer o.lock.Unlock()
	out := make([]*pipeline.Pipeline, 0, len(o.ports))
	for _, p := range o.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port() < out[j].Port() })
	return out
}

// Run declares all ports ready and feeds every port from its source. A source that is exhausted is
// followed by the final marker on its port. Run returns when every source has returned or one has failed.
func (o *Operator) Run(ctx context.Context, bindings map[string]sources.Source) error {
	for port := range bindings {
		if _, err := o.Port(port); err != nil {
			return err
		}
	}
	o.AllPortsReady()
	g, gCtx := errgroup.WithContext(ctx)
	for port, src := range bindings {
		port, src := port, src
		p, _ := o.Port(port)
		g.Go(func() error {
			log := o.log.With("port", port, "source", src.Name())
			log.Infow("Starting source")
			if err := src.Run(gCtx, p); err != nil {
				return fmt.Errorf("source %s of port %s failed: %w", src.Name(), port, err)
			}
			if gCtx.Err() != nil {
				log.Infow("Source stopped")
				return nil
			}
			log.Infow("Source exhausted, sending the final marker")
			return p.Mark(gCtx, tuple.FinalMarker)
		})
	}
	return g.Wait()
}

// Resume re-activates the partitions of every port, e.g. after Reset.
func (o *Operator) Resume(ctx context.Context) error {
	var errs error
	for _, p := range o.Ports() {
		errs = multierr.Append(errs, p.Action(ctx, tuple.ActionResume))
	}
	return errs
}

// Checkpoint writes the state of every port: an int32 port count, then per port in name order the port
// name and its window checkpoint as length prefixed bytes.
func (o *Operator) Checkpoint(ctx context.Context, w io.Writer) error {
	ports := o.Ports()
	enc := checkpoint.NewEncoder(w)
	if err := enc.WriteInt32(int32(len(ports))); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, p := range ports {
		buf.Reset()
		if err := p.Window().Checkpoint(ctx, &buf); err != nil {
			return fmt.Errorf("failed to checkpoint port %s: %w", p.Port(), err)
		}
		if err := enc.WriteString(p.Port()); err != nil {
			return err
		}
		if err := enc.WriteBytes(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Reset restores every port from a checkpoint written by Checkpoint. Ports missing from the checkpoint are
// reset to their initial state. Restored partitions stay inactive until Resume.
func (o *Operator) Reset(ctx context.Context, r io.Reader) error {
	dec := checkpoint.NewDecoder(r)
	n, err := dec.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		return checkpoint.ErrNegativeLength
	}
	restored := make(map[string]bool, n)
	for i := int32(0); i < n; i++ {
		name, err := dec.ReadString()
		if err != nil {
			return err
		}
		data, err := dec.ReadBytes()
		if err != nil {
			return err
		}
		p, err := o.Port(name)
		if err != nil {
			return fmt.Errorf("checkpoint holds port %s: %w", name, err)
		}
		if err := p.Window().Reset(ctx, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to restore port %s: %w", name, err)
		}
		restored[name] = true
	}
	for _, p := range o.Ports() {
		if restored[p.Port()] {
			continue
		}
		o.log.Warnw("Port missing from checkpoint, resetting it to its initial state", zap.String("port", p.Port()))
		if err := p.Window().ResetToInitialState(ctx); err != nil {
			return err
		}
	}
	return nil
}

// IsHealthy reports whether the operator is serving: all ports are ready and it is not closed.
func (o *Operator) IsHealthy(_ context.Context) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	switch {
	case o.isClosed:
		return ErrClosed
	case !o.ready:
		return ErrNotReady
	}
	return nil
}

// Close stops the background work of every window and the scheduler. It returns the background errors
// nobody read from Errors.
func (o *Operator) Close(ctx context.Context) error {
	o.lock.Lock()
	if o.isClosed {
		o.lock.Unlock()
		return nil
	}
	o.isClosed = true
	o.lock.Unlock()

	var errs error
	for _, p := range o.Ports() {
		errs = multierr.Append(errs, p.Window().CancelAllBackgroundTasks(ctx))
	}
	o.sched.Close()
drain:
	for {
		select {
		case err := <-o.errCh:
			errs = multierr.Append(errs, err)
		default:
			break drain
		}
	}
	o.lock.Lock()
	defer o.lock.Unlock()
	return multierr.Append(errs, o.dropped)
}
