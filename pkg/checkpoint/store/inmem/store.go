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

/*
Package inmem implements a checkpoint store held in memory, used by tests and single process runs where
checkpoints need not survive a restart.
*/
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/shared/logging"
)

// inMemStore is a checkpoint store backed by a map.
type inMemStore struct {
	name     string
	kv       map[string][]byte
	lock     sync.RWMutex
	isClosed bool
	log      *zap.SugaredLogger
}

var _ checkpoint.Store = (*inMemStore)(nil)

// NewStore returns an in memory checkpoint store.
func NewStore(ctx context.Context, name string) checkpoint.Store {
	return &inMemStore{
		name: name,
		kv:   make(map[string][]byte),
		log:  logging.FromContext(ctx).With("store", name),
	}
}

// Put stores a copy of data.
func (s *inMemStore) Put(_ context.Context, key string, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isClosed {
		return fmt.Errorf("checkpoint store %s is closed", s.name)
	}
	val := make([]byte, len(data))
	copy(val, data)
	s.kv[key] = val
	s.log.Debugw("Stored checkpoint", zap.String("key", key), zap.Int("bytes", len(val)))
	return nil
}

func (s *inMemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	val, ok := s.kv[key]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, checkpoint.ErrNotFound)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *inMemStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.kv, key)
	return nil
}

// Keys returns all the keys in sorted order.
func (s *inMemStore) Keys(_ context.Context) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	keys := make([]string, 0, len(s.kv))
	for key := range s.kv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *inMemStore) Name() string {
	return s.name
}

// Close closes the store, further puts fail.
func (s *inMemStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.isClosed = true
	return nil
}
