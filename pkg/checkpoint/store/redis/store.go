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

// Package redis implements a checkpoint store on redis. Checkpoints are stored as plain string values
// under "<name>:<key>".
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/shared/logging"
)

const scanCount = 100

type redisStore struct {
	name   string
	client redis.UniversalClient
	log    *zap.SugaredLogger
}

var _ checkpoint.Store = (*redisStore)(nil)

// NewStore returns a store named name on the redis deployment described by options.
func NewStore(ctx context.Context, name string, options *redis.UniversalOptions) checkpoint.Store {
	return NewStoreWithClient(ctx, name, redis.NewUniversalClient(options))
}

// NewStoreWithClient returns a store named name using client. Closing the store closes the client.
func NewStoreWithClient(ctx context.Context, name string, client redis.UniversalClient) checkpoint.Store {
	return &redisStore{
		name:   name,
		client: client,
		log:    logging.FromContext(ctx).With("store", name),
	}
}

func (s *redisStore) key(key string) string {
	return s.name + ":" + key
}

func (s *redisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store checkpoint %s: %w", key, err)
	}
	s.log.Debugw("Stored checkpoint", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("key %s: %w", key, checkpoint.ErrNotFound)
	}
	return data, err
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	prefix := s.name + ":"
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) Name() string {
	return s.name
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// IsHealthy pings redis.
func (s *redisStore) IsHealthy(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
