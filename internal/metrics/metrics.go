package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersProposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_proposed_total",
			Help: "Transfer proposals by resulting state",
		},
		[]string{"state"},
	)

	TransfersCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transfers_committed_total",
			Help: "Transfers whose atomic unit committed",
		},
	)

	CommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_commit_failures_total",
			Help: "Transfers rolled back, by reason",
		},
		[]string{"reason"},
	)

	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transfer_commit_duration_seconds",
			Help:    "Duration of the transfer atomic unit",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
		},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transfer_event_publish_errors_total",
			Help: "TransferCommitted events that could not be published",
		},
	)
)
