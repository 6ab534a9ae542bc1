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
	"github.com/numaproj/numawindow/pkg/window/slot"
)

// EventType is the type of a window event.
type EventType int

const (
	// Insertion is raised after tuples are inserted into a partition. The view holds the inserted tuples.
	Insertion EventType = iota
	// Eviction is raised after tuples are evicted from a partition by its eviction policy.
	Eviction
	// Trigger is raised when the trigger policy of a sliding window fires. The view holds the whole partition.
	Trigger
	// InitialFull is raised once when a count based sliding window holds its configured number of tuples.
	InitialFull
	// PartitionEviction is raised when a whole partition is evicted. The view holds its remaining tuples.
	PartitionEviction
	// Final is raised for every partition when the final marker arrives on the port.
	Final
	// WindowMarker is raised for every partition when a window marker arrives on the port.
	WindowMarker
)

func (e EventType) String() string {
	switch e {
	case Insertion:
		return "Insertion"
	case Eviction:
		return "Eviction"
	case Trigger:
		return "Trigger"
	case InitialFull:
		return "InitialFull"
	case PartitionEviction:
		return "PartitionEviction"
	case Final:
		return "Final"
	case WindowMarker:
		return "WindowMarker"
	default:
		return "Unknown"
	}
}

// Window is the view of a window handed to listeners with every event. Its methods must only be called
// from within the listener callback, where the window lock is already held.
type Window interface {
	// Descriptor returns the window descriptor.
	Descriptor() *Descriptor
	// PartitionKeys returns the keys of the current partitions.
	PartitionKeys() []string
	// EvictPartition evicts the partition for key, raising a PartitionEviction event. Evicting an unknown key
	// is a no-op.
	EvictPartition(key string) error
	// NeedsPartitionEviction reports whether the partition eviction policy would evict a partition now.
	NeedsPartitionEviction() bool
}

// Event is a window lifecycle event.
type Event struct {
	Type         EventType
	Window       Window
	PartitionKey string
	Tuples       slot.View
}

// Listener receives the events of a window. HandleEvent is always called with the window lock held, so it
// must not block on other window operations of the same window other than through Event.Window.
type Listener interface {
	HandleEvent(e Event) error
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(e Event) error

func (f ListenerFunc) HandleEvent(e Event) error {
	return f(e)
}

type noopListener struct{}

func (noopListener) HandleEvent(Event) error {
	return nil
}

// NoopListener returns a listener ignoring every event.
func NoopListener() Listener {
	return noopListener{}
}
