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

package tuple

// Punctuation is a control marker travelling on a stream alongside tuples.
type Punctuation int

const (
	// WindowMarker separates groups of tuples, for example to close a punctuation based window.
	WindowMarker Punctuation = iota
	// FinalMarker signals that no more tuples or punctuation will arrive on the port.
	FinalMarker
)

func (p Punctuation) String() string {
	switch p {
	case WindowMarker:
		return "WindowMarker"
	case FinalMarker:
		return "FinalMarker"
	default:
		return "Unknown"
	}
}

// Action is a control action delivered to an operator by its runtime.
type Action int

const (
	// ActionResume is delivered when processing resumes after a pause, for example after a
	// checkpoint restore.
	ActionResume Action = iota
	// ActionPause is delivered when processing is about to pause.
	ActionPause
)

func (a Action) String() string {
	switch a {
	case ActionResume:
		return "Resume"
	case ActionPause:
		return "Pause"
	default:
		return "Unknown"
	}
}
