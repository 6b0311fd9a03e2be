package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomePublished  = "published"
	outcomeSuppressed = "suppressed"
	outcomeFailed     = "failed"
)

var (
	editsInspectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anonedits_edits_inspected_total",
			Help: "Edits with a diff URL evaluated against the accounts.",
		},
	)
	statusesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonedits_statuses_total",
			Help: "Rendered statuses by account and outcome.",
		},
		[]string{"account", "outcome"},
	)
	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anonedits_publish_duration_seconds",
			Help:    "Duration of publisher hand-offs.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)
)
