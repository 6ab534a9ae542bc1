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

package operator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numawindow/pkg/metrics"
)

// operatorPorts is the number of windowed input ports of an operator
var operatorPorts = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "operator",
	Name:      "ports",
	Help:      "Number of windowed input ports",
}, []string{metrics.LabelOperator})

// droppedErrors counts background errors dropped because the error channel was full
var droppedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "operator",
	Name:      "dropped_background_errors_total",
	Help:      "Total number of background errors dropped because nobody was reading them",
}, []string{metrics.LabelOperator})
