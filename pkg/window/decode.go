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
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Parameter names understood by Decode.
const (
	ParamKind                    = "kind"
	ParamPartitioned             = "partitioned"
	ParamEvictionPolicy          = "evictionPolicy"
	ParamEvictionConfig          = "evictionConfig"
	ParamEvictionAttribute       = "evictionAttribute"
	ParamTriggerPolicy           = "triggerPolicy"
	ParamTriggerConfig           = "triggerConfig"
	ParamTriggerAttribute        = "triggerAttribute"
	ParamPartitionEviction       = "partitionEviction"
	ParamPartitionEvictionConfig = "partitionEvictionConfig"
)

// Decode builds a descriptor from loosely typed parameters, as read from a configuration file. Time
// configuration is given in seconds and may be fractional, e.g. "2.5", and is truncated to milliseconds.
// Parameter names are matched case insensitively.
func Decode(params map[string]interface{}) (*Descriptor, error) {
	p := make(map[string]interface{}, len(params))
	for k, v := range params {
		p[strings.ToLower(k)] = v
	}
	get := func(name string) (interface{}, bool) {
		v, ok := p[strings.ToLower(name)]
		return v, ok
	}

	var opts []Option
	if v, ok := get(ParamKind); ok {
		k, err := decodeKind(cast.ToString(v))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithKind(k))
	}
	if v, ok := get(ParamPartitioned); ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, ParamPartitioned, err)
		}
		opts = append(opts, WithPartitioned(b))
	}
	if v, ok := get(ParamEvictionPolicy); ok {
		cfg, _ := get(ParamEvictionConfig)
		attr, _ := get(ParamEvictionAttribute)
		policy, err := decodePolicy(ParamEvictionPolicy, cast.ToString(v), cfg, cast.ToString(attr))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithEviction(policy))
	}
	if v, ok := get(ParamTriggerPolicy); ok {
		cfg, _ := get(ParamTriggerConfig)
		attr, _ := get(ParamTriggerAttribute)
		policy, err := decodePolicy(ParamTriggerPolicy, cast.ToString(v), cfg, cast.ToString(attr))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTrigger(policy))
	}
	if v, ok := get(ParamPartitionEviction); ok {
		cfg, _ := get(ParamPartitionEvictionConfig)
		opt, err := decodePartitionEviction(cast.ToString(v), cfg)
		if err != nil {
			return nil, err
		}
		if opt != nil {
			opts = append(opts, opt)
		}
	}
	return NewDescriptor(opts...)
}

func decodeKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "none", "notwindowed", "":
		return NotWindowed, nil
	case "tumbling":
		return Tumbling, nil
	case "sliding":
		return Sliding, nil
	default:
		return NotWindowed, fmt.Errorf("%w: unknown window kind %q", ErrInvalidDescriptor, s)
	}
}

func decodePolicy(name, typ string, cfg interface{}, attribute string) (Policy, error) {
	switch strings.ToLower(typ) {
	case "", "none":
		return Policy{}, nil
	case "count":
		n, err := cast.ToIntE(cfg)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %s count: %v", ErrInvalidDescriptor, name, err)
		}
		return CountPolicy(n), nil
	case "time":
		d, err := SecondsToDuration(cfg)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %s time: %v", ErrInvalidDescriptor, name, err)
		}
		return TimePolicy(d), nil
	case "delta":
		delta, err := cast.ToFloat64E(cfg)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %s delta: %v", ErrInvalidDescriptor, name, err)
		}
		return DeltaPolicy(attribute, delta), nil
	case "punct", "punctuation":
		return PunctuationPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("%w: unknown %s %q", ErrInvalidDescriptor, name, typ)
	}
}

func decodePartitionEviction(typ string, cfg interface{}) (Option, error) {
	switch strings.ToLower(typ) {
	case "", "none":
		return nil, nil
	case "partitionage":
		d, err := SecondsToDuration(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: partition age: %v", ErrInvalidDescriptor, err)
		}
		return WithPartitionAge(d), nil
	case "partitioncount":
		n, err := cast.ToIntE(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: partition count: %v", ErrInvalidDescriptor, err)
		}
		return WithPartitionCount(n), nil
	case "tuplecount":
		n, err := cast.ToIntE(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: tuple count: %v", ErrInvalidDescriptor, err)
		}
		return WithTupleCount(n), nil
	default:
		return nil, fmt.Errorf("%w: unknown partition eviction %q", ErrInvalidDescriptor, typ)
	}
}

// SecondsToDuration converts a number of seconds, possibly fractional and possibly given as a string, to a
// duration truncated to milliseconds.
func SecondsToDuration(v interface{}) (time.Duration, error) {
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(int64(secs*1000.0)) * time.Millisecond, nil
}
