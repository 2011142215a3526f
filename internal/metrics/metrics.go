// Package metrics exposes allocation counters for Prometheus.
package metrics

import (
	"errors"

	"github.com/plate-filler/backend/internal/allocator"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records the outcome of allocation runs.
type Collector struct {
	runs        *prometheus.CounterVec
	penalty     *prometheus.HistogramVec
	wellsPlaced prometheus.Counter
	platesUsed  prometheus.Counter
}

// NewCollector creates the allocation metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "platefiller",
			Name:      "allocation_runs_total",
			Help:      "Allocation runs by outcome and selected strategy.",
		}, []string{"outcome", "strategy"}),
		penalty: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "platefiller",
			Name:      "layout_penalty",
			Help:      "Penalty of every candidate layout.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"strategy"}),
		wellsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platefiller",
			Name:      "wells_placed_total",
			Help:      "Filled wells across all selected layouts.",
		}),
		platesUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platefiller",
			Name:      "plates_used_total",
			Help:      "Plates across all selected layouts.",
		}),
	}
	reg.MustRegister(c.runs, c.penalty, c.wellsPlaced, c.platesUsed)
	return c
}

// Observe records one run. res is nil when err is set.
func (c *Collector) Observe(res *allocator.Result, err error) {
	if c == nil {
		return
	}
	if err != nil {
		var capErr *allocator.CapacityExceededError
		var valErr *allocator.ValidationError
		switch {
		case errors.As(err, &capErr):
			c.runs.WithLabelValues("capacity_exceeded", "").Inc()
		case errors.As(err, &valErr):
			c.runs.WithLabelValues("invalid", "").Inc()
		default:
			c.runs.WithLabelValues("error", "").Inc()
		}
		return
	}

	c.runs.WithLabelValues("ok", res.Selected.Strategy.String()).Inc()
	for _, cand := range res.Candidates {
		c.penalty.WithLabelValues(cand.Strategy.String()).Observe(cand.Penalty)
	}
	c.wellsPlaced.Add(float64(res.Selected.Layout.Filled()))
	c.platesUsed.Add(float64(len(res.Selected.Layout.Plates)))
}
