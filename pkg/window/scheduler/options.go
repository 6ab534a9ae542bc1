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

package scheduler

import "github.com/benbjohnson/clock"

type options struct {
	clock clock.Clock
}

// DefaultOptions returns the default scheduler options, running on the wall clock.
func DefaultOptions() *options {
	return &options{
		clock: clock.New(),
	}
}

// Option configures a ClockScheduler.
type Option func(*options)

// WithClock sets the time source, e.g. a clock.Mock in tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}
