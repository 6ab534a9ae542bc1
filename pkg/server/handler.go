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

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	evictCache "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/montanaflynn/stats"

	"github.com/numaproj/numawindow/pkg/operator"
	"github.com/numaproj/numawindow/pkg/window"
	"github.com/numaproj/numawindow/pkg/window/controller"
)

const statsCacheTTL = time.Second

type handler struct {
	operator *operator.Operator
	// statsCache keeps recent partition stats, computing them takes the window lock
	statsCache *evictCache.LRU[string, PartitionStats]
}

// NewHandler returns the API handler of op.
func NewHandler(op *operator.Operator) *handler {
	return &handler{
		operator:   op,
		statsCache: evictCache.NewLRU[string, PartitionStats](64, nil, statsCacheTTL),
	}
}

func errorResponse(c *gin.Context, status int, err error) {
	errMsg := err.Error()
	c.JSON(status, NewAPIResponse(&errMsg, nil))
}

func (h *handler) port(c *gin.Context) (*controller.Controller, bool) {
	p, err := h.operator.Port(c.Param("port"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, err)
		return nil, false
	}
	return p.Window(), true
}

// ListPorts lists the windowed input ports.
func (h *handler) ListPorts(c *gin.Context) {
	var out []PortSummary
	for _, p := range h.operator.Ports() {
		w := p.Window()
		out = append(out, PortSummary{
			Port:          p.Port(),
			Window:        w.Name(),
			Descriptor:    w.Descriptor().String(),
			Mode:          w.Mode().String(),
			Partitions:    len(w.ActiveWindowPartitions()),
			Tuples:        w.TupleCount(),
			FinalMarkSeen: w.FinalMarkSeen(),
		})
	}
	c.JSON(http.StatusOK, NewAPIResponse(nil, out))
}

// ListPartitions lists the partition keys of the window of a port.
func (h *handler) ListPartitions(c *gin.Context) {
	w, ok := h.port(c)
	if !ok {
		return
	}
	keys, err := w.Partitions()
	if errors.Is(err, window.ErrNotPartitioned) {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, NewAPIResponse(nil, keys))
}

// GetPartitionStats summarizes the partition sizes of the window of a port.
func (h *handler) GetPartitionStats(c *gin.Context) {
	w, ok := h.port(c)
	if !ok {
		return
	}
	if s, ok := h.statsCache.Get(w.Name()); ok {
		c.JSON(http.StatusOK, NewAPIResponse(nil, s))
		return
	}
	if err := w.LockContext(c.Request.Context()); err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err)
		return
	}
	partitions := w.ActiveWindowPartitions()
	sizes := make([]float64, 0, len(partitions))
	var largest *string
	maxLen := -1
	for _, p := range partitions {
		sizes = append(sizes, float64(p.Len()))
		if p.Len() > maxLen || (p.Len() == maxLen && p.Key() < *largest) {
			key := p.Key()
			largest, maxLen = &key, p.Len()
		}
	}
	w.Unlock()

	s, err := summarize(sizes)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	s.Largest = largest
	h.statsCache.Add(w.Name(), s)
	c.JSON(http.StatusOK, NewAPIResponse(nil, s))
}

func summarize(sizes []float64) (PartitionStats, error) {
	out := PartitionStats{Partitions: len(sizes)}
	if len(sizes) == 0 {
		return out, nil
	}
	data := stats.Float64Data(sizes)
	var err error
	if out.Min, err = data.Min(); err != nil {
		return out, fmt.Errorf("min: %w", err)
	}
	if out.Max, err = data.Max(); err != nil {
		return out, fmt.Errorf("max: %w", err)
	}
	if out.Mean, err = data.Mean(); err != nil {
		return out, fmt.Errorf("mean: %w", err)
	}
	if out.Median, err = data.Median(); err != nil {
		return out, fmt.Errorf("median: %w", err)
	}
	if out.P90, err = data.Percentile(90); err != nil {
		return out, fmt.Errorf("p90: %w", err)
	}
	if out.StdDev, err = data.StandardDeviation(); err != nil {
		return out, fmt.Errorf("stddev: %w", err)
	}
	return out, nil
}
