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

package controller

import (
	"fmt"

	"github.com/numaproj/numawindow/pkg/window/partition"
)

type options struct {
	// name identifies the window in logs and metrics
	name string
	// factory creates the tuple level policy of every partition
	factory partition.Factory
}

// DefaultOptions returns the default controller options: partitions retain every tuple.
func DefaultOptions() *options {
	return &options{
		name:    "window",
		factory: partition.RetainAllFactory(),
	}
}

// Option configures a Controller.
type Option func(*options) error

// WithName sets the window name.
func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("window name must not be empty")
		}
		o.name = name
		return nil
	}
}

// WithFactory sets the partition policy factory.
func WithFactory(f partition.Factory) Option {
	return func(o *options) error {
		if f == nil {
			return fmt.Errorf("partition factory must not be nil")
		}
		o.factory = f
		return nil
	}
}
