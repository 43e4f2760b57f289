// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the domain counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the extension runtime's domain metrics. A nil *Metrics is
// valid and records nothing, so components can be built without a registry.
type Metrics struct {
	BundleServes  *prometheus.CounterVec
	ProxyCalls    *prometheus.CounterVec
	ProxyDuration prometheus.Histogram
	Loads         *prometheus.CounterVec
	BundleFetches prometheus.Counter
	Executions    prometheus.Counter
	WidgetRenders *prometheus.CounterVec
	RenderErrors  *prometheus.CounterVec
}

// NewMetrics creates the domain metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BundleServes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_bundle_serves_total",
			Help: "Bundles served by source (store, remote) and outcome",
		}, []string{"source", "outcome"}),
		ProxyCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_proxy_calls_total",
			Help: "Action proxy calls by outcome code",
		}, []string{"outcome"}),
		ProxyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tessera_proxy_call_duration_seconds",
			Help:    "Latency of upstream plugin execution service calls",
			Buckets: prometheus.DefBuckets,
		}),
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_extension_loads_total",
			Help: "Extension loads by outcome (ready, error, cached)",
		}, []string{"outcome"}),
		BundleFetches: f.NewCounter(prometheus.CounterOpts{
			Name: "tessera_loader_bundle_fetches_total",
			Help: "Bundle fetches issued by the loader",
		}),
		Executions: f.NewCounter(prometheus.CounterOpts{
			Name: "tessera_sandbox_executions_total",
			Help: "Bundle executions inside the sandbox",
		}),
		WidgetRenders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_widget_area_renders_total",
			Help: "Widget area renders by extension point",
		}, []string{"extension_point"}),
		RenderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_widget_render_errors_total",
			Help: "Widgets that rendered an error panel, by plugin",
		}, []string{"plugin_id"}),
	}
}

// RecordBundleServe counts one bundle resolution.
func (m *Metrics) RecordBundleServe(source, outcome string) {
	if m == nil {
		return
	}
	m.BundleServes.WithLabelValues(source, outcome).Inc()
}

// RecordProxyCall counts one proxied call and its latency.
func (m *Metrics) RecordProxyCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProxyCalls.WithLabelValues(outcome).Inc()
	m.ProxyDuration.Observe(elapsed.Seconds())
}

// RecordLoad counts one loader result.
func (m *Metrics) RecordLoad(outcome string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
}

// RecordFetch counts one loader bundle fetch.
func (m *Metrics) RecordFetch() {
	if m == nil {
		return
	}
	m.BundleFetches.Inc()
}

// RecordExecution counts one sandbox execution.
func (m *Metrics) RecordExecution() {
	if m == nil {
		return
	}
	m.Executions.Inc()
}

// RecordWidgetRender counts one widget area render.
func (m *Metrics) RecordWidgetRender(point string) {
	if m == nil {
		return
	}
	m.WidgetRenders.WithLabelValues(point).Inc()
}

// RecordRenderError counts one widget that fell back to its error panel.
func (m *Metrics) RecordRenderError(pluginID string) {
	if m == nil {
		return
	}
	m.RenderErrors.WithLabelValues(pluginID).Inc()
}
