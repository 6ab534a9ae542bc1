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
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by a Store when a key has no checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Stateful is implemented by components whose state can be checkpointed and restored.
type Stateful interface {
	// Checkpoint writes the current state to w.
	Checkpoint(ctx context.Context, w io.Writer) error
	// Reset replaces the current state with the state read from r.
	Reset(ctx context.Context, r io.Reader) error
}

// Store persists checkpoints by key.
type Store interface {
	// Put stores the checkpoint for key, replacing any previous one.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the checkpoint for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the checkpoint for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns the keys of all stored checkpoints in sorted order.
	Keys(ctx context.Context) ([]string, error)
	// Name returns the store name.
	Name() string
	// Close releases the backend connection.
	Close() error
}
