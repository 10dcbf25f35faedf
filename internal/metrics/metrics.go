// Package metrics exposes Prometheus collectors for scrub jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadscrub"

// Outcome labels beside the error kinds.
const (
	OutcomeDone = "done"

	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder owns a registry and the job collectors registered on it. A nil
// Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	apiCallsTotal   *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec
	phonesSubmitted prometheus.Counter
	phonesDNC       prometheus.Counter
	outputsWritten  *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "total",
				Help:      "Scrub jobs by outcome (done or the error kind that stopped them)",
			},
			[]string{"outcome"},
		),
		jobDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "duration_seconds",
				Help:      "Scrub job wall time",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
			},
		),
		apiCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "calls_total",
				Help:      "Suppression API calls by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		apiCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "call_duration_seconds",
				Help:      "Suppression API call latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~2.7m
			},
			[]string{"endpoint"},
		),
		phonesSubmitted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "phone",
				Name:      "submitted_total",
				Help:      "Phones sent to the suppression API",
			},
		),
		phonesDNC: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "phone",
				Name:      "dnc_total",
				Help:      "Phones reported suppressed",
			},
		),
		outputsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "output",
				Name:      "files_total",
				Help:      "Output files written by kind",
			},
			[]string{"kind"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// JobFinished counts one job by outcome and observes its duration.
func (r *Recorder) JobFinished(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.jobsTotal.WithLabelValues(outcome).Inc()
	r.jobDuration.Observe(d.Seconds())
}

// APICall counts one suppression API call.
func (r *Recorder) APICall(endpoint string, err error, d time.Duration) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.apiCallsTotal.WithLabelValues(endpoint, result).Inc()
	r.apiCallDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Phones adds to the submitted and suppressed phone counters.
func (r *Recorder) Phones(submitted, dnc int) {
	if r == nil {
		return
	}
	r.phonesSubmitted.Add(float64(submitted))
	r.phonesDNC.Add(float64(dnc))
}

// OutputWritten counts one persisted output file.
func (r *Recorder) OutputWritten(kind string) {
	if r == nil {
		return
	}
	r.outputsWritten.WithLabelValues(kind).Inc()
}
