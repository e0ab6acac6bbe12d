package overlap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	phaseLabel = "phase"
	passLabel  = "pass"

	passSelf   = "self"
	passRemote = "remote"
)

var (
	overlapSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlap_sent_msgs",
		Help: "The number of protocol messages sent, by phase.",
	}, []string{
		phaseLabel,
	})

	overlapSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlap_sent_bytes",
		Help: "The number of payload bytes sent, by phase.",
	}, []string{
		phaseLabel,
	})

	overlapLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlap_links",
		Help: "The number of confirmed block links, counted once per side.",
	})

	overlapPrunedProposals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlap_pruned_proposals",
		Help: "The number of one sided link proposals dropped during symmetrization.",
	})

	overlapExactTests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlap_exact_tests",
		Help: "The number of exact cell intersection tests, by pass.",
	}, []string{
		passLabel,
	})

	overlapConfirmedPairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlap_confirmed_pairs",
		Help: "The number of intersecting cell pairs found, by pass.",
	}, []string{
		passLabel,
	})

	overlapDegenerateSpheres = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlap_degenerate_spheres",
		Help: "The number of cells whose bounding sphere fell back to a point query.",
	})

	overlapPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "overlap_phase_duration_seconds",
		Help:    "The time spent in each phase of a detection run.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{
		phaseLabel,
	})
)
