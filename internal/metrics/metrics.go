// Package metrics exposes prometheus counters for the orchestrator's
// lookup and submission activity. Registration is optional; the
// orchestrator works with a nil recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder counts lookup dispatches, stale drops, lookup failures, and
// submission outcomes. All methods are nil-safe.
type Recorder struct {
	lookups     *prometheus.CounterVec
	staleDrops  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	submissions *prometheus.CounterVec
}

// New registers the counters with the given registerer. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflow",
			Name:      "lookups_dispatched_total",
			Help:      "Entity lookups dispatched, by entity kind.",
		}, []string{"kind"}),
		staleDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflow",
			Name:      "stale_responses_dropped_total",
			Help:      "Lookup responses discarded because a newer lookup superseded them.",
		}, []string{"kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflow",
			Name:      "lookup_failures_total",
			Help:      "Lookups that failed at the transport or server.",
		}, []string{"kind"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflow",
			Name:      "submissions_total",
			Help:      "Submission attempts by terminal outcome.",
		}, []string{"outcome"}),
	}
}

// LookupDispatched counts a dispatched lookup for the kind.
func (r *Recorder) LookupDispatched(kind string) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(kind).Inc()
}

// StaleDropped counts a response discarded by the token check.
func (r *Recorder) StaleDropped(kind string) {
	if r == nil {
		return
	}
	r.staleDrops.WithLabelValues(kind).Inc()
}

// LookupFailed counts a failed lookup.
func (r *Recorder) LookupFailed(kind string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(kind).Inc()
}

// SubmissionFinished counts a submission by outcome: ok, blocked,
// incomplete, or rejected.
func (r *Recorder) SubmissionFinished(outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
}
