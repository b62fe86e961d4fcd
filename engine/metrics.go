package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by an Engine.
type Metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them on reg.
// Collectors that are already registered are reused, so several engines
// can share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cql_expression_cache_hits_total",
			Help: "Expression definitions served from the evaluation cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cql_expression_cache_misses_total",
			Help: "Expression definitions evaluated because no cached result existed.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cql_evaluation_errors_total",
			Help: "Top-level expression evaluations that failed.",
		}, []string{"library"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cql_evaluation_duration_seconds",
			Help:    "Duration of top-level expression evaluations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"library"}),
	}

	var err error
	if m.cacheHits, err = register(reg, m.cacheHits); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = register(reg, m.cacheMisses); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) observeEvaluation(library string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(library).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(library).Inc()
	}
}
