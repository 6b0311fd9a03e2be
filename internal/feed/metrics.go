package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anonedits_feed_events_total",
			Help: "Server-sent events received from the recent changes feed.",
		},
	)
	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anonedits_feed_reconnects_total",
			Help: "Reconnects to the recent changes feed after a disconnect.",
		},
	)
)
