// README: Prometheus collectors for the dispatch engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the engine's collectors so components share one set.
type Metrics struct {
	MatchesTotal        prometheus.Counter
	ExhaustedTotal      prometheus.Counter
	CancelledTotal      prometheus.Counter
	LeaseConflictsTotal prometheus.Counter
	OfferTimeoutsTotal  prometheus.Counter
	ETAFallbacksTotal   prometheus.Counter
	RejectedUpdates     *prometheus.CounterVec
	MatchLatency        prometheus.Histogram
	RoundsPerOutcome    prometheus.Histogram
}

// New builds the collectors and registers them on reg. Passing a fresh
// registry in tests keeps them isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_matches_total",
			Help: "Total number of requests resolved with a match",
		}),
		ExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_exhausted_total",
			Help: "Total number of requests that exhausted all retry rounds",
		}),
		CancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_cancelled_total",
			Help: "Total number of requests cancelled before a match",
		}),
		LeaseConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_lease_conflicts_total",
			Help: "Total number of offer attempts skipped because the agent held a pending offer",
		}),
		OfferTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_offer_timeouts_total",
			Help: "Total number of rounds that ended with zero acceptances inside the window",
		}),
		ETAFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_eta_fallbacks_total",
			Help: "Total number of candidates scored with the distance-over-speed ETA fallback",
		}),
		RejectedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_rejected_location_updates_total",
			Help: "Total number of rejected location updates by reason",
		}, []string{"reason"}),
		MatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_match_latency_seconds",
			Help:    "End-to-end latency from request intake to match",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RoundsPerOutcome: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_rounds_per_outcome",
			Help:    "Number of rounds consumed before a terminal outcome",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MatchesTotal, m.ExhaustedTotal, m.CancelledTotal,
			m.LeaseConflictsTotal, m.OfferTimeoutsTotal, m.ETAFallbacksTotal,
			m.RejectedUpdates, m.MatchLatency, m.RoundsPerOutcome,
		)
	}
	return m
}

// Nop returns unregistered collectors for components constructed in tests.
func Nop() *Metrics { return New(nil) }
