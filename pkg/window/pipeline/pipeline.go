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

// Package pipeline feeds the tuples, punctuation and actions arriving on an input port through the window
// controlling that port and forwards them downstream.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/shared/logging"
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window/controller"
)

// Forwarder receives what a pipeline passes downstream.
type Forwarder interface {
	ForwardTuple(ctx context.Context, t *tuple.Tuple) error
	ForwardPunctuation(ctx context.Context, p tuple.Punctuation) error
}

type noopForwarder struct{}

func (noopForwarder) ForwardTuple(context.Context, *tuple.Tuple) error { return nil }

func (noopForwarder) ForwardPunctuation(context.Context, tuple.Punctuation) error { return nil }

// NoopForwarder drops everything, for a port whose window is the only consumer.
func NoopForwarder() Forwarder {
	return noopForwarder{}
}

// Pipeline is the processing path of one windowed input port.
type Pipeline struct {
	port      string
	window    *controller.Controller
	forwarder Forwarder
	// markMu serializes punctuation, so a final marker is processed at most once at a time
	markMu sync.Mutex
	log    *zap.SugaredLogger
}

// New returns the pipeline of port, forwarding to fwd. A nil fwd forwards nothing.
func New(ctx context.Context, port string, w *controller.Controller, fwd Forwarder) *Pipeline {
	if fwd == nil {
		fwd = NoopForwarder()
	}
	return &Pipeline{
		port:      port,
		window:    w,
		forwarder: fwd,
		log:       logging.FromContext(ctx).With("port", port),
	}
}

// Port returns the name of the input port.
func (p *Pipeline) Port() string {
	return p.port
}

// Window returns the controller of the port's window.
func (p *Pipeline) Window() *controller.Controller {
	return p.window
}

// Tuple inserts t into the window and forwards it. A listener error fails the tuple and nothing is
// forwarded.
func (p *Pipeline) Tuple(ctx context.Context, t *tuple.Tuple) error {
	if err := p.window.Insert(ctx, t); err != nil {
		return fmt.Errorf("failed to insert tuple into window %s: %w", p.window.Name(), err)
	}
	return p.forwarder.ForwardTuple(ctx, t)
}

// Mark delivers punctuation to every partition and forwards it. A final marker first drains the window and
// shuts down its background work, so no timer or age sweep fires after the Final events.
func (p *Pipeline) Mark(ctx context.Context, punct tuple.Punctuation) error {
	p.markMu.Lock()
	defer p.markMu.Unlock()
	if punct == tuple.FinalMarker {
		p.log.Infow("Final marker received, shutting down window background work")
		if err := p.window.Drain(ctx); err != nil {
			return fmt.Errorf("failed to drain window %s: %w", p.window.Name(), err)
		}
		if err := p.window.CancelAllBackgroundTasks(ctx); err != nil {
			return fmt.Errorf("failed to cancel background tasks of window %s: %w", p.window.Name(), err)
		}
	}
	if err := p.window.MarkAll(ctx, punct); err != nil {
		return fmt.Errorf("failed to mark window %s with %s: %w", p.window.Name(), punct, err)
	}
	return p.forwarder.ForwardPunctuation(ctx, punct)
}

// Action applies a runtime action to the window. Resume re-activates the partitions, e.g. after a restore.
func (p *Pipeline) Action(ctx context.Context, a tuple.Action) error {
	switch a {
	case tuple.ActionResume:
		p.log.Debugw("Resuming window", zap.String("window", p.window.Name()))
		return p.window.ActivatePartitions(ctx)
	default:
		return nil
	}
}
