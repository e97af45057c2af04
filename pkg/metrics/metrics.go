// Package metrics exports projection pass statistics as prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tomoproj/pkg/projector"
)

const namespace = "tomoproj"

// Collector holds the projection metrics of one process.
type Collector struct {
	lors         *prometheus.CounterVec
	passes       prometheus.Counter
	passDuration prometheus.Histogram
	voxels       prometheus.Gauge
	summMax      prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		lors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lors_total",
			Help:      "Counts LORs handled by projection passes, by outcome.",
		}, []string{"outcome"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Counts completed projection passes.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of projection passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		voxels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voxels_touched",
			Help:      "Voxels with a nonzero accumulator after the last pass.",
		}),
		summMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensitivity_max",
			Help:      "Largest sensitivity image value after the last pass.",
		}),
	}

	for _, m := range []prometheus.Collector{c.lors, c.passes, c.passDuration, c.voxels, c.summMax} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObservePass records a finished pass.
func (c *Collector) ObservePass(s projector.Summary) {
	c.lors.WithLabelValues(projector.Projected.String()).Add(float64(s.Projected))
	c.lors.WithLabelValues(projector.SkippedDegenerate.String()).Add(float64(s.Degenerate))
	c.lors.WithLabelValues(projector.SkippedOutside.String()).Add(float64(s.OutsideFOV))
	c.lors.WithLabelValues(projector.SkippedZeroMeasurement.String()).Add(float64(s.ZeroMeasurement))
	c.passes.Inc()
	c.passDuration.Observe(s.Duration.Seconds())
	c.voxels.Set(float64(s.VoxelsTouched))
	c.summMax.Set(s.SummMax)
}
