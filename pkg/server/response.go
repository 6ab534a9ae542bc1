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

package server

// APIResponse is the envelope of every API response.
type APIResponse struct {
	// ErrMessage provides more detailed error information. If API call succeeds, the ErrMessage is nil.
	ErrMessage *string `json:"errMessage,omitempty"`
	// Data is the response body.
	Data interface{} `json:"data"`
}

// NewAPIResponse creates a new APIResponse.
func NewAPIResponse(errMessage *string, data interface{}) APIResponse {
	return APIResponse{
		ErrMessage: errMessage,
		Data:       data,
	}
}

// PortSummary describes the window of an input port.
type PortSummary struct {
	Port          string `json:"port"`
	Window        string `json:"window"`
	Descriptor    string `json:"descriptor"`
	Mode          string `json:"mode"`
	Partitions    int    `json:"partitions"`
	Tuples        int64  `json:"tuples"`
	FinalMarkSeen bool   `json:"finalMarkSeen"`
}

// PartitionStats summarizes the number of slots per partition of a window.
type PartitionStats struct {
	Partitions int     `json:"partitions"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	P90        float64 `json:"p90"`
	StdDev     float64 `json:"stdDev"`
	// Largest is the key of the partition holding the most slots
	Largest *string `json:"largest,omitempty"`
}
