package promadapters

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// NewRegistry returns a registry that already exposes the Go runtime and process metrics.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// Handler serves the metrics of gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

type vec[V any] struct {
	vec        V
	labelNames []string
}

// MetricsCollector registers one vector per metric name on first use. The label names of the first
// measurement fix the vector's labels; later measurements fill missing labels with "" and drop
// unknown ones.
type MetricsCollector struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	histograms map[string]vec[*prometheus.HistogramVec]
	counters   map[string]vec[*prometheus.CounterVec]
	gauges     map[string]vec[*prometheus.GaugeVec]
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithBuckets replaces prometheus.DefBuckets for duration histograms.
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) {
		m.buckets = buckets
	}
}

func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]vec[*prometheus.HistogramVec]),
		counters:   make(map[string]vec[*prometheus.CounterVec]),
		gauges:     make(map[string]vec[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

func (m *MetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	v, ok := m.histogram(name, labels)
	if !ok {
		return
	}

	v.vec.With(project(v.labelNames, labels)).Observe(duration.Seconds())
}

func (m *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	v, ok := m.counter(name, labels)
	if !ok {
		return
	}

	v.vec.With(project(v.labelNames, labels)).Inc()
}

func (m *MetricsCollector) RecordValue(name string, value float64, labels map[string]string) {
	v, ok := m.gauge(name, labels)
	if !ok {
		return
	}

	v.vec.With(project(v.labelNames, labels)).Set(value)
}

func (m *MetricsCollector) histogram(name string, labels map[string]string) (vec[*prometheus.HistogramVec], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.histograms[name]; ok {
		return v, true
	}

	names := labelNames(labels)
	created := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help(name), Buckets: m.buckets}, names)

	registered, ok := register(m.registerer, created)
	if !ok {
		return vec[*prometheus.HistogramVec]{}, false
	}

	v := vec[*prometheus.HistogramVec]{vec: registered, labelNames: names}
	m.histograms[name] = v

	return v, true
}

func (m *MetricsCollector) counter(name string, labels map[string]string) (vec[*prometheus.CounterVec], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.counters[name]; ok {
		return v, true
	}

	names := labelNames(labels)
	created := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, names)

	registered, ok := register(m.registerer, created)
	if !ok {
		return vec[*prometheus.CounterVec]{}, false
	}

	v := vec[*prometheus.CounterVec]{vec: registered, labelNames: names}
	m.counters[name] = v

	return v, true
}

func (m *MetricsCollector) gauge(name string, labels map[string]string) (vec[*prometheus.GaugeVec], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.gauges[name]; ok {
		return v, true
	}

	names := labelNames(labels)
	created := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help(name)}, names)

	registered, ok := register(m.registerer, created)
	if !ok {
		return vec[*prometheus.GaugeVec]{}, false
	}

	v := vec[*prometheus.GaugeVec]{vec: registered, labelNames: names}
	m.gauges[name] = v

	return v, true
}

// register reuses an identical collector that is already registered, e.g. by a second
// MetricsCollector on the same registry.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, bool) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, true
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(C)
		return existing, ok
	}

	var zero C

	return zero, false
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func project(names []string, labels map[string]string) prometheus.Labels {
	projected := make(prometheus.Labels, len(names))
	for _, name := range names {
		projected[name] = labels[name]
	}

	return projected
}

func help(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

var _ docstore.MetricsCollector = (*MetricsCollector)(nil)
