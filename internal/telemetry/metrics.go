package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cg-order-portal/internal/domain"
)

// Outcome labels of pipeline metrics.
const (
	OutcomeSuccess = "success"
)

// Metrics are the Prometheus collectors of the order pipeline.
type Metrics struct {
	Registry      *prometheus.Registry
	Submissions   *prometheus.CounterVec
	Validations   *prometheus.CounterVec
	OrderForms    *prometheus.CounterVec
	SamplesSent   prometheus.Counter
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgadmin",
			Name:      "submissions_total",
			Help:      "Project submissions by outcome.",
		}, []string{"outcome"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgadmin",
			Name:      "validations_total",
			Help:      "Project validations by outcome.",
		}, []string{"outcome"}),
		OrderForms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgadmin",
			Name:      "orderforms_parsed_total",
			Help:      "Parsed order forms by outcome.",
		}, []string{"outcome"}),
		SamplesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cgadmin",
			Name:      "samples_submitted_total",
			Help:      "Samples created in the LIMS.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cgadmin",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	registry.MustRegister(m.Submissions, m.Validations, m.OrderForms, m.SamplesSent, m.StageDuration)
	return m
}

// Outcome maps an error onto a metric label: the pipeline error code in
// lower case, "internal" for other errors and OutcomeSuccess for nil.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch domain.CodeOf(err) {
	case domain.ErrSchema:
		return "schema"
	case domain.ErrParse:
		return "parse"
	case domain.ErrReference:
		return "reference"
	case domain.ErrValidation:
		return "validation"
	case domain.ErrDuplicate:
		return "duplicate"
	case domain.ErrRemote:
		return "remote"
	case domain.ErrUnsupported:
		return "unsupported"
	}
	return "internal"
}
