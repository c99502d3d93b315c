// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// wshubNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	wshubNamespace = "wshub"

	pathLabelName   = "path"
	opcodeLabelName = "opcode"
	pathModeLabel   = "mode" // "buffer" or "stream"
)

var (
	// latencyBuckets 为耗时直方图的桶划分，单位为毫秒。
	latencyBuckets = prometheus.ExponentialBuckets(1, 2, 18)

	HostCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: wshubNamespace,
			Name:      "host_count",
			Help:      "number of service hosts currently registered on the manager",
		})

	SessionCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: wshubNamespace,
			Name:      "session_count",
			Help:      "number of live sessions per host path",
		}, []string{pathLabelName})

	BroadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: wshubNamespace,
			Name:      "broadcast_total",
			Help:      "number of broadcast invocations by opcode and buffer/stream path",
		}, []string{opcodeLabelName, pathModeLabel})

	BroadpingLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: wshubNamespace,
			Name:      "broadping_latency_ms",
			Help:      "wall-clock duration of a broadping fan-out, in milliseconds",
			Buckets:   latencyBuckets,
		})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 init 函数中调用。
func Register(r prometheus.Registerer) {
	r.MustRegister(HostCount)
	r.MustRegister(SessionCount)
	r.MustRegister(BroadcastTotal)
	r.MustRegister(BroadpingLatencyMs)
	metricRegisterer = r
}
