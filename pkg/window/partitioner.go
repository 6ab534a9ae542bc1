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

package window

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/numaproj/numawindow/pkg/shared/expr"
	"github.com/numaproj/numawindow/pkg/tuple"
)

// KeyDelimiter joins the keys of a tuple into a partition key.
const KeyDelimiter = ":"

// Partitioner derives the partition key of a tuple.
type Partitioner interface {
	Partition(t *tuple.Tuple) (string, error)
}

// PartitionerFunc adapts a function to a Partitioner.
type PartitionerFunc func(t *tuple.Tuple) (string, error)

func (f PartitionerFunc) Partition(t *tuple.Tuple) (string, error) {
	return f(t)
}

// KeysPartitioner partitions by the tuple keys joined with KeyDelimiter.
func KeysPartitioner() Partitioner {
	return PartitionerFunc(func(t *tuple.Tuple) (string, error) {
		return strings.Join(t.Keys, KeyDelimiter), nil
	})
}

// HashPartitioner partitions by the tuple keys into a fixed number of buckets, bounding the number of
// partitions independent of key cardinality.
func HashPartitioner(buckets int) (Partitioner, error) {
	if buckets <= 0 {
		return nil, fmt.Errorf("bucket count must be positive, got %d", buckets)
	}
	return PartitionerFunc(func(t *tuple.Tuple) (string, error) {
		h := murmur3.Sum32([]byte(strings.Join(t.Keys, KeyDelimiter)))
		return strconv.Itoa(int(h % uint32(buckets))), nil
	}), nil
}

// ExprPartitioner partitions by the string result of an expression evaluated against the tuple, e.g.
// `json(payload).customer`.
func ExprPartitioner(expression string) (Partitioner, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}
	return PartitionerFunc(func(t *tuple.Tuple) (string, error) {
		return program.EvalString(t)
	}), nil
}
