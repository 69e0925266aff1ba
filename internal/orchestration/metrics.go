package orchestration

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/edgerun/internal/provisioning"
)

// Metrics records stage outcomes of a run. Each run owns its registry, so
// a CLI invocation can write its metrics to a node-exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	pollAttempts  *prometheus.CounterVec
	resources     *prometheus.CounterVec
}

// NewMetrics creates the run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edgerun",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
			},
			[]string{"stage"},
		),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgerun",
				Subsystem: "pipeline",
				Name:      "stage_total",
				Help:      "Finished pipeline stages by result",
			},
			[]string{"stage", "result"},
		),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgerun",
				Subsystem: "pipeline",
				Name:      "poll_attempts_total",
				Help:      "Polling attempts by stage and observed state",
			},
			[]string{"stage", "state"},
		),
		resources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgerun",
				Subsystem: "pipeline",
				Name:      "resources_total",
				Help:      "Resources created or reused by the run, by type and action",
			},
			[]string{"type", "action"},
		),
	}
	m.registry.MustRegister(m.stageDuration, m.stageTotal, m.pollAttempts, m.resources)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Observer returns an observer that feeds pipeline events into m.
func (m *Metrics) Observer() provisioning.Observer {
	return metricsObserver{m}
}

type metricsObserver struct {
	m *Metrics
}

func (o metricsObserver) Printf(string, ...any) {}

func (o metricsObserver) Progress(string, int, int) {}

func (o metricsObserver) WithFields(map[string]string) provisioning.Observer {
	return o
}

func (o metricsObserver) Event(event provisioning.Event) {
	switch event.Type {
	case provisioning.EventPhaseCompleted:
		o.m.stageDuration.WithLabelValues(event.Phase).Observe(event.Duration.Seconds())
		o.m.stageTotal.WithLabelValues(event.Phase, "success").Inc()
	case provisioning.EventPhaseFailed:
		o.m.stageDuration.WithLabelValues(event.Phase).Observe(event.Duration.Seconds())
		result := event.Fields["class"]
		if result == "" {
			result = "error"
		}
		o.m.stageTotal.WithLabelValues(event.Phase, result).Inc()
	case provisioning.EventPollAttempt:
		o.m.pollAttempts.WithLabelValues(event.Phase, event.Fields["state"]).Inc()
	case provisioning.EventResourceCreated:
		o.m.resources.WithLabelValues(event.Fields["type"], "created").Inc()
	case provisioning.EventResourceExists:
		o.m.resources.WithLabelValues(event.Fields["type"], "exists").Inc()
	}
}
