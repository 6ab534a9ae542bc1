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

package operator

import (
	"github.com/benbjohnson/clock"
)

type options struct {
	// clock drives the scheduler of the background work of the windows
	clock clock.Clock
	// errorBuffer is the capacity of the background error channel
	errorBuffer int
}

// DefaultOptions returns the default operator options.
func DefaultOptions() *options {
	return &options{
		clock:       clock.New(),
		errorBuffer: 64,
	}
}

// Option configures an Operator.
type Option func(*options)

// WithClock sets the clock of the background scheduler.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithErrorBuffer sets the capacity of the background error channel.
func WithErrorBuffer(n int) Option {
	return func(o *options) {
		o.errorBuffer = n
	}
}
