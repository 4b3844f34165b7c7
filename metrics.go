package increquery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusConfig configures the Prometheus metrics sink.
type PrometheusConfig struct {
	// Namespace is the metrics namespace (default: "increquery").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// PrometheusOption configures a PrometheusConfig.
type PrometheusOption func(*PrometheusConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) PrometheusOption {
	return func(c *PrometheusConfig) { c.Namespace = namespace }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) PrometheusOption {
	return func(c *PrometheusConfig) { c.Subsystem = subsystem }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) PrometheusOption {
	return func(c *PrometheusConfig) { c.ConstLabels = labels }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) PrometheusOption {
	return func(c *PrometheusConfig) { c.Registry = registry }
}

func defaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace: "increquery",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// PrometheusEventSink adapts EventSink to github.com/prometheus/client_golang,
// counting executions, validations, blocks, cycles, and evictions by query
// name. EventDidExecute is not counted.
type PrometheusEventSink struct {
	executions  *prometheus.CounterVec
	validations *prometheus.CounterVec
	blocks      *prometheus.CounterVec
	cycles      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
}

// NewPrometheusEventSink builds a PrometheusEventSink, registering its
// metrics with opts.Registry (prometheus.DefaultRegisterer if unset).
//
//	sink := increquery.NewPrometheusEventSink(
//	    increquery.WithNamespace("myapp"),
//	)
//	db := increquery.NewDatabase().WithEventSink(sink)
func NewPrometheusEventSink(opts ...PrometheusOption) *PrometheusEventSink {
	config := defaultPrometheusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &PrometheusEventSink{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "query_executions_total",
			Help:        "Total number of query function invocations, by query name",
			ConstLabels: config.ConstLabels,
		}, []string{"query"}),

		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "query_validations_total",
			Help:        "Total number of memos revalidated without recomputation, by query name",
			ConstLabels: config.ConstLabels,
		}, []string{"query"}),

		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "query_blocks_total",
			Help:        "Total number of times a reader blocked on another runtime's in-progress computation, by query name",
			ConstLabels: config.ConstLabels,
		}, []string{"query"}),

		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "query_cycles_total",
			Help:        "Total number of cycles detected, by query name",
			ConstLabels: config.ConstLabels,
		}, []string{"query"}),

		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "query_evictions_total",
			Help:        "Total number of memos discarded by LRU eviction, Sweep, or DropAll, by query name",
			ConstLabels: config.ConstLabels,
		}, []string{"query"}),
	}
}

// SalsaEvent implements EventSink.
func (p *PrometheusEventSink) SalsaEvent(evt Event) {
	query := evt.DatabaseKey.Query
	switch evt.Kind {
	case EventWillExecute:
		p.executions.WithLabelValues(query).Inc()
	case EventDidValidateMemoizedValue:
		p.validations.WithLabelValues(query).Inc()
	case EventWillBlockOn:
		p.blocks.WithLabelValues(query).Inc()
	case EventDidDetectCycle:
		p.cycles.WithLabelValues(query).Inc()
	case EventDidEvict:
		p.evictions.WithLabelValues(query).Inc()
	}
}
