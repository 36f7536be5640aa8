package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tavle_feed_subscribers",
		Help: "The current number of live feed subscribers",
	})

	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tavle_feed_broadcasts_total",
		Help: "The total number of feed snapshots broadcast to subscribers",
	})

	droppedSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tavle_feed_dropped_snapshots_total",
		Help: "The total number of snapshots dropped because a subscriber channel was full",
	})

	snapshotErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tavle_feed_snapshot_errors_total",
		Help: "The total number of failed snapshot loads",
	})
)
