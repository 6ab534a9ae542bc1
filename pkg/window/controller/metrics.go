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

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numawindow/pkg/metrics"
)

// windowPartitions is the number of partitions of a window
var windowPartitions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "window",
	Name:      "partitions",
	Help:      "Number of partitions of a window",
}, []string{metrics.LabelWindow, metrics.LabelStrategy})

// windowTuples is the number of slots held across all partitions of a window
var windowTuples = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "window",
	Name:      "tuples",
	Help:      "Number of tuples held by a window",
}, []string{metrics.LabelWindow})

var windowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "events_total",
	Help:      "Total number of events dispatched to the window listener",
}, []string{metrics.LabelWindow, metrics.LabelEventType})

var listenerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "listener_errors_total",
	Help:      "Total number of errors returned by the window listener",
}, []string{metrics.LabelWindow, metrics.LabelEventType})

// backgroundTasks counts the background tasks that ran to completion
var backgroundTasks = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "background_tasks_total",
	Help:      "Total number of background window tasks run",
}, []string{metrics.LabelWindow, metrics.LabelTask})

var backgroundErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "background_task_errors_total",
	Help:      "Total number of failed background window tasks",
}, []string{metrics.LabelWindow, metrics.LabelTask})

var checkpointSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "window",
	Name:      "checkpoint_size_bytes",
	Help:      "Size of window checkpoints in bytes",
	Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
}, []string{metrics.LabelWindow})
