// Package metrics exposes SMSHog's Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "smshog"

	flushSuccess = "success"
	flushFailure = "failure"
)

// Metrics records protocol requests, the stored message count and snapshot
// flushes.
type Metrics struct {
	mu sync.Mutex

	requests      *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	flushDuration prometheus.Histogram
	stored        *storedGauge

	registerer prometheus.Registerer
	registered bool
}

// New creates the collectors. A nil registerer selects
// prometheus.DefaultRegisterer. The smshog_messages_stored gauge reads 0
// until [Metrics.SetStoredCount] points it at a store.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sns",
				Name:      "requests_total",
				Help:      "Total number of emulated SNS requests by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "flushes_total",
				Help:      "Total number of snapshot writes by result",
			},
			[]string{"result"},
		),
		flushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "flush_duration_seconds",
				Help:      "Time spent writing the snapshot file",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		stored: newStoredGauge(),
	}
}

// Register registers the collectors. Safe to call multiple times.
//
// When the registerer already holds SMSHog collectors, from an earlier
// instance sharing the registry, those are adopted so observations reach the
// exported series.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	requests, err := register(m.registerer, m.requests)
	if err != nil {
		return err
	}
	flushes, err := register(m.registerer, m.flushes)
	if err != nil {
		return err
	}
	flushDuration, err := register(m.registerer, m.flushDuration)
	if err != nil {
		return err
	}
	stored, err := register(m.registerer, m.stored)
	if err != nil {
		return err
	}

	m.requests = requests
	m.flushes = flushes
	m.flushDuration = flushDuration
	m.stored = stored
	m.registered = true
	return nil
}

// SetStoredCount sets the function sampled for smshog_messages_stored at
// scrape time. Nil makes the gauge read 0.
func (m *Metrics) SetStoredCount(count func() int) {
	m.mu.Lock()
	stored := m.stored
	m.mu.Unlock()
	stored.set(count)
}

// register registers c, or returns the collector already registered in its
// place.
func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	err := r.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("metrics: collector registered as %T", are.ExistingCollector)
	}
	return existing, nil
}

// storedGauge reports the stored message count through a replaceable source.
type storedGauge struct {
	desc *prometheus.Desc

	mu    sync.RWMutex
	count func() int
}

func newStoredGauge() *storedGauge {
	return &storedGauge{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_stored"),
			"Number of messages currently held in the store",
			nil, nil,
		),
	}
}

func (g *storedGauge) set(count func() int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count = count
}

func (g *storedGauge) value() float64 {
	g.mu.RLock()
	count := g.count
	g.mu.RUnlock()
	if count == nil {
		return 0
	}
	return float64(count())
}

// Describe implements prometheus.Collector.
func (g *storedGauge) Describe(ch chan<- *prometheus.Desc) {
	ch <- g.desc
}

// Collect implements prometheus.Collector.
func (g *storedGauge) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.value())
}

// ObserveRequest counts one dispatched protocol request.
func (m *Metrics) ObserveRequest(action, outcome string) {
	m.requests.WithLabelValues(action, outcome).Inc()
}

// ObserveFlush records the outcome of one snapshot write.
func (m *Metrics) ObserveFlush(err error, elapsed time.Duration) {
	result := flushSuccess
	if err != nil {
		result = flushFailure
	}
	m.flushes.WithLabelValues(result).Inc()
	m.flushDuration.Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
// A nil gatherer selects prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
