package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects core counters for the orchestration loop.
type Metrics struct {
	runs       *prometheus.CounterVec
	steps      *prometheus.CounterVec
	retries    prometheus.Counter
	splices    prometheus.Counter
	extraction *prometheus.CounterVec
	validator  *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "songsmith_runs_total",
		Help: "Total runs by terminal outcome.",
	}, []string{"outcome"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "songsmith_steps_total",
		Help: "Total executed steps by result.",
	}, []string{"result"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "songsmith_retries_total",
		Help: "Total full or partial sequence retries.",
	})
	splices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "songsmith_plan_splices_total",
		Help: "Total evaluator-suggested plan splices applied.",
	})
	extraction := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "songsmith_output_extractions_total",
		Help: "Total final output extractions by status.",
	}, []string{"status"})
	validator := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "songsmith_validator_faults_total",
		Help: "Total validator faults by kind.",
	}, []string{"kind"})

	runs = registerCounterVec(registerer, runs)
	steps = registerCounterVec(registerer, steps)
	retries = registerCounter(registerer, retries)
	splices = registerCounter(registerer, splices)
	extraction = registerCounterVec(registerer, extraction)
	validator = registerCounterVec(registerer, validator)

	return &Metrics{
		runs:       runs,
		steps:      steps,
		retries:    retries,
		splices:    splices,
		extraction: extraction,
		validator:  validator,
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncRun(outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncStep(result string) {
	if m == nil || m.steps == nil {
		return
	}
	m.steps.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) IncSplice() {
	if m == nil || m.splices == nil {
		return
	}
	m.splices.Inc()
}

func (m *Metrics) IncExtraction(status string) {
	if m == nil || m.extraction == nil {
		return
	}
	m.extraction.WithLabelValues(status).Inc()
}

func (m *Metrics) IncValidatorFault(kind string) {
	if m == nil || m.validator == nil {
		return
	}
	m.validator.WithLabelValues(kind).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}

func registerCounter(registerer prometheus.Registerer, counter prometheus.Counter) prometheus.Counter {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return counter
}
