package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/go-utils/metrics"
)

// NewUtilsFactory adapts a go-utils metric factory, such as the one a
// Forge application exposes through app.Metrics().
func NewUtilsFactory(f metrics.MetricFactory) MetricFactory {
	return utilsFactory{f: f}
}

type utilsFactory struct {
	f metrics.MetricFactory
}

func (u utilsFactory) Counter(name string) Counter     { return u.f.Counter(name) }
func (u utilsFactory) Histogram(name string) Histogram { return u.f.Histogram(name) }

// PrometheusFactory creates Prometheus collectors and registers them with a
// Registerer. Dotted metric names become underscore-separated.
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory returns a factory registering into reg. A nil reg
// uses prometheus.DefaultRegisterer. Histograms use buckets, or
// prometheus.DefBuckets when none are given.
func NewPrometheusFactory(reg prometheus.Registerer, buckets ...float64) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return &PrometheusFactory{
		reg:        reg,
		buckets:    buckets,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Counter implements MetricFactory.
func (p *PrometheusFactory) Counter(name string) Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: name,
	})
	c = register(p.reg, c)
	p.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (p *PrometheusFactory) Histogram(name string) Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    name,
		Buckets: p.buckets,
	})
	h = register(p.reg, h)
	p.histograms[name] = h
	return h
}

// register adds c to reg, reusing a collector another factory already
// registered under the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

var promReplacer = strings.NewReplacer(".", "_", "-", "_")

func promName(name string) string {
	return promReplacer.Replace(name)
}
