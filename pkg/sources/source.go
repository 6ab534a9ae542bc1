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

// Package sources defines the tuple sources feeding the input ports of an operator.
package sources

import (
	"context"

	"github.com/numaproj/numawindow/pkg/tuple"
)

// Port receives the stream of an input port.
type Port interface {
	Tuple(ctx context.Context, t *tuple.Tuple) error
	Mark(ctx context.Context, p tuple.Punctuation) error
	Action(ctx context.Context, a tuple.Action) error
}

// Source feeds a port.
type Source interface {
	// Name returns the source name.
	Name() string
	// Run feeds port until the source is exhausted or ctx is done. An exhausted source returns nil, and the
	// caller delivers the final marker.
	Run(ctx context.Context, port Port) error
}
