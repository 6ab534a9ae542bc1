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

// Package logger implements a downstream sink and a window listener that write JSON lines, one per tuple,
// punctuation or window event.
package logger

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/numaproj/numawindow/pkg/metrics"
	"github.com/numaproj/numawindow/pkg/tuple"
	"github.com/numaproj/numawindow/pkg/window"
)

// TupleRecord is the JSON form of a tuple.
type TupleRecord struct {
	EventTime int64             `json:"eventTime"`
	Keys      []string          `json:"keys,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   string            `json:"payload"`
}

// NewTupleRecord returns the JSON form of t.
func NewTupleRecord(t *tuple.Tuple) TupleRecord {
	return TupleRecord{
		EventTime: t.EventTime.UnixMilli(),
		Keys:      t.Keys,
		Headers:   t.Headers,
		Payload:   string(t.Payload),
	}
}

// Record is a line written by the sink or the listener.
type Record struct {
	Name        string        `json:"name"`
	Kind        string        `json:"kind"`
	Partition   *string       `json:"partition,omitempty"`
	Punctuation string        `json:"punctuation,omitempty"`
	Tuples      []TupleRecord `json:"tuples,omitempty"`
}

// ToLog writes what it receives as JSON lines.
type ToLog struct {
	name string
	mu   sync.Mutex
	enc  *json.Encoder
}

type Option func(*ToLog) error

// WithWriter sets the destination, stdout by default.
func WithWriter(w io.Writer) Option {
	return func(t *ToLog) error {
		t.enc = json.NewEncoder(w)
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(name string, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{name: name, enc: json.NewEncoder(os.Stdout)}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	return toLog, nil
}

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

func (t *ToLog) write(r Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	logSinkWriteCount.WithLabelValues(t.name, r.Kind).Inc()
	return t.enc.Encode(r)
}

// ForwardTuple writes t.
func (t *ToLog) ForwardTuple(_ context.Context, tp *tuple.Tuple) error {
	return t.write(Record{Name: t.name, Kind: "tuple", Tuples: []TupleRecord{NewTupleRecord(tp)}})
}

// ForwardPunctuation writes p.
func (t *ToLog) ForwardPunctuation(_ context.Context, p tuple.Punctuation) error {
	return t.write(Record{Name: t.name, Kind: "punctuation", Punctuation: p.String()})
}

// HandleEvent writes a window event with the live tuples of its view.
func (t *ToLog) HandleEvent(e window.Event) error {
	key := e.PartitionKey
	r := Record{Name: t.name, Kind: e.Type.String(), Partition: &key}
	for _, tp := range e.Tuples.Tuples() {
		r.Tuples = append(r.Tuples, NewTupleRecord(tp))
	}
	return t.write(r)
}

var _ window.Listener = (*ToLog)(nil)

// metricsLabel is the label set of the sink write counter
var metricsLabel = []string{metrics.LabelSink, metrics.LabelKind}
