// Package metrics collects and exposes Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface services and middleware use to record metrics.
// A nop implementation keeps tests free of registry plumbing.
type Recorder interface {
	RecordHTTPRequest(route string, status int, duration time.Duration)
	RecordEntryCreated()
	RecordTimerStarted()
	RecordTimerStopped()
	RecordTimerDiscarded()
	RecordTimerConflict()
	RecordPeriodLockedRejection()
	RecordFixedFeeApplied()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     prometheus.Histogram
	entriesCreated  prometheus.Counter
	timersStarted   prometheus.Counter
	timersStopped   prometheus.Counter
	timersDiscarded prometheus.Counter
	timerConflicts  prometheus.Counter
	lockRejections  prometheus.Counter
	fixedFees       prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourledger_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hourledger_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		entriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_time_entries_created_total",
			Help: "Time entries created, including timer-materialized ones.",
		}),
		timersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_timers_started_total",
			Help: "Timer sessions started.",
		}),
		timersStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_timers_stopped_total",
			Help: "Timer sessions stopped and materialized into entries.",
		}),
		timersDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_timers_discarded_total",
			Help: "Timer sessions discarded without producing an entry.",
		}),
		timerConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_timer_conflicts_total",
			Help: "Timer starts rejected because a session already existed.",
		}),
		lockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_period_locked_rejections_total",
			Help: "Mutations rejected because the accounting period was locked.",
		}),
		fixedFees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourledger_fixed_fees_applied_total",
			Help: "Fixed fees applied during billing aggregation.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.entriesCreated,
		c.timersStarted,
		c.timersStopped,
		c.timersDiscarded,
		c.timerConflicts,
		c.lockRejections,
		c.fixedFees,
	)

	return c
}

func (c *Collector) RecordHTTPRequest(route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordEntryCreated()          { c.entriesCreated.Inc() }
func (c *Collector) RecordTimerStarted()          { c.timersStarted.Inc() }
func (c *Collector) RecordTimerStopped()          { c.timersStopped.Inc() }
func (c *Collector) RecordTimerDiscarded()        { c.timersDiscarded.Inc() }
func (c *Collector) RecordTimerConflict()         { c.timerConflicts.Inc() }
func (c *Collector) RecordPeriodLockedRejection() { c.lockRejections.Inc() }
func (c *Collector) RecordFixedFeeApplied()       { c.fixedFees.Inc() }

// Handler returns the /metrics endpoint for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Nop is a Recorder that drops every observation.
type Nop struct{}

func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
func (Nop) RecordEntryCreated()                          {}
func (Nop) RecordTimerStarted()                          {}
func (Nop) RecordTimerStopped()                          {}
func (Nop) RecordTimerDiscarded()                        {}
func (Nop) RecordTimerConflict()                         {}
func (Nop) RecordPeriodLockedRejection()                 {}
func (Nop) RecordFixedFeeApplied()                       {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
