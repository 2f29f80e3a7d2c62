package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutord",
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Requests settled by the dispatcher, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutord",
			Subsystem: "dispatcher",
			Name:      "request_duration_seconds",
			Help:      "Time from registration to settlement in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutord",
			Subsystem: "dispatcher",
			Name:      "pending_requests",
			Help:      "Entries in the correlation table",
		},
	)

	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutord",
			Subsystem: "dispatcher",
			Name:      "watchdog_renewals_total",
			Help:      "Watchdog renewals by event type",
		},
		[]string{"type"},
	)

	engineStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutord",
			Subsystem: "dispatcher",
			Name:      "engine_starts_total",
			Help:      "Engine launches by result",
		},
		[]string{"result"},
	)

	droppedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutord",
			Subsystem: "dispatcher",
			Name:      "dropped_events_total",
			Help:      "Tagged events for unknown or settled request ids",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, pendingRequests, renewalsTotal, engineStartsTotal, droppedEventsTotal)
}

// outcomeLabel buckets an error for the requests_total counter.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTimeout(err):
		return "timeout"
	case IsBusy(err):
		return "busy"
	case IsEngineError(err):
		return "error"
	case IsStartupFailure(err):
		return "startup"
	case IsEngineClosed(err):
		return "closed"
	default:
		return "canceled"
	}
}
