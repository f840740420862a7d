// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qrtr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qrtr-go/qrtr/internal/qrtrwire"
)

// Metrics is the ambient observability surface SPEC_FULL.md adds on top of
// spec.md's data/event model (spec.md's Non-goals scope out application
// protocol parsing and routing, not instrumentation). An Observer wired
// with WithMetrics updates these as it decodes control packets and
// resolves WaitForNode calls; a nil *Metrics (the default) makes every
// method here a no-op, so Create doesn't need a separate "metrics
// enabled" branch anywhere in observer.go.
type Metrics struct {
	packetsTotal *prometheus.CounterVec
	nodes        prometheus.Gauge
	services     prometheus.Gauge
	waitOutcomes *prometheus.CounterVec
}

// NewMetrics builds a Metrics instance and, if reg is non-nil, registers
// its collectors with it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrtr_control_packets_total",
			Help: "Control packets processed by the bus observer, labeled by command.",
		}, []string{"cmd"}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qrtr_directory_nodes",
			Help: "Currently published nodes in the directory.",
		}),
		services: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qrtr_directory_services",
			Help: "Currently known service entries across all published nodes.",
		}),
		waitOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrtr_wait_for_node_total",
			Help: "WaitForNode completions, labeled by outcome (resolved, timeout, cancelled).",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.packetsTotal, m.nodes, m.services, m.waitOutcomes)
	}

	return m
}

func (m *Metrics) observePacket(cmd uint32) {
	if m == nil {
		return
	}
	m.packetsTotal.WithLabelValues(qrtrwire.CmdName(cmd)).Inc()
}

func (m *Metrics) setDirectoryCounts(nodes, services int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(nodes))
	m.services.Set(float64(services))
}

func (m *Metrics) observeWait(outcome string) {
	if m == nil {
		return
	}
	m.waitOutcomes.WithLabelValues(outcome).Inc()
}
