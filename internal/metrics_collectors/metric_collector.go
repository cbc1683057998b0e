package metrics_collectors

import (
	"context"
)

// MetricCollector produces one named metric for the status report.
type MetricCollector interface {
	Name() string                    // Key of the metric in the report
	Collect(ctx context.Context) any // Current value, nil when unavailable
	Unit() string                    // Unit of the metric (e.g., "count", "bytes")
}

// MetricsRegistry holds the collectors in registration order.
type MetricsRegistry struct {
	collectors []MetricCollector
	names      map[string]struct{}
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{names: make(map[string]struct{})}
}

// Register adds a collector. A second collector with the same name is ignored.
func (r *MetricsRegistry) Register(collector MetricCollector) bool {
	if _, exists := r.names[collector.Name()]; exists {
		return false
	}
	r.names[collector.Name()] = struct{}{}
	r.collectors = append(r.collectors, collector)
	return true
}

// GetCollectors returns the registered collectors.
func (r *MetricsRegistry) GetCollectors() []MetricCollector {
	return append([]MetricCollector(nil), r.collectors...)
}

// CollectAll gathers every metric that currently has a value.
func (r *MetricsRegistry) CollectAll(ctx context.Context) map[string]any {
	out := make(map[string]any, len(r.collectors))
	for _, c := range r.collectors {
		if v := c.Collect(ctx); v != nil {
			out[c.Name()] = v
		}
	}
	return out
}
