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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.observePacket(2)
		m.setDirectoryCounts(1, 2)
		m.observeWait("resolved")
	})
}

func TestMetrics_DirectoryCountsTrackObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	o, sock := newTestObserver(t, WithMetrics(m))

	feedNewServer(sock, 1, 1, 1, 0, 0)
	waitFor(t, publishDebounce+time.Second, func() bool {
		_, ok := o.GetNode(1)
		return ok
	})

	require.Equal(t, float64(1), gaugeValue(t, m.nodes))
	require.Equal(t, float64(1), gaugeValue(t, m.services))
}

func TestMetrics_WaitOutcomesCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeWait("timeout")
	m.observeWait("timeout")
	m.observeWait("resolved")

	require.Equal(t, float64(2), testutilCounterValue(t, m.waitOutcomes.WithLabelValues("timeout")))
	require.Equal(t, float64(1), testutilCounterValue(t, m.waitOutcomes.WithLabelValues("resolved")))
}

func testutilCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
